// cmd/apply.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/style"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/panel"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/protocol"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/session"
	"github.com/xkilldash9x/scalpel-editor/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const stepTimeout = 30 * time.Second

var (
	errUnknownStep = errors.New("unknown step")
	errExpectation = errors.New("expectation failed")
)

// step is one line of an apply script.
type step struct {
	Op      string            `json:"op"`
	Command *protocol.Message `json:"command,omitempty"`
	Event   *session.Input    `json:"event,omitempty"`
	Field   panel.Field       `json:"field,omitempty"`
	Value   string            `json:"value,omitempty"`
	Button  string            `json:"button,omitempty"`
	Scale   float64           `json:"scale,omitempty"`
	Width   float64           `json:"width,omitempty"`
	Height  float64           `json:"height,omitempty"`
	Expect  *expectation      `json:"expect,omitempty"`
}

// expectation asserts on the committed document, or on the guest state.
type expectation struct {
	Selector string            `json:"selector,omitempty"`
	Count    *int              `json:"count,omitempty"`
	Text     *string           `json:"text,omitempty"`
	Attr     map[string]string `json:"attr,omitempty"`
	Style    map[string]string `json:"style,omitempty"`
	State    string            `json:"state,omitempty"`
}

func newApplyCmd() *cobra.Command {
	var in, script, out string

	cmd := &cobra.Command{
		Use:   "apply --in page.html --script edits.jsonl",
		Short: "Replay scripted edits against a document and write the result.",
		Long: `apply loads a document into a fresh editor session and replays a
JSON-lines script. Each line is one step: command, event, panel, undo, redo,
scale, mount, commit or expect. Pending edits are committed at the end and the
resulting document is written to --out, or stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			doc, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("reading document: %w", err)
			}
			f, err := os.Open(script)
			if err != nil {
				return fmt.Errorf("opening script: %w", err)
			}
			defer f.Close()

			logger := observability.GetLogger()
			sess := sessionFactory(logger, cfg.Editor())()
			defer sess.Close()

			result, err := runScript(cmd.Context(), logger, sess, string(doc), f)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), result)
				return err
			}
			if err := os.WriteFile(out, []byte(result), 0o644); err != nil {
				return fmt.Errorf("writing document: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "document to edit (required)")
	cmd.Flags().StringVarP(&script, "script", "s", "", "JSON-lines edit script (required)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "destination, stdout when empty")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

// runScript loads doc, replays every step and returns the committed document.
func runScript(ctx context.Context, logger *zap.Logger, sess *session.Session, doc string, script io.Reader) (string, error) {
	if err := sess.Load(doc); err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(script)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var st step
		if err := json.Unmarshal([]byte(text), &st); err != nil {
			return "", fmt.Errorf("line %d: decoding step: %w", line, err)
		}
		if err := runStep(ctx, sess, st); err != nil {
			return "", fmt.Errorf("line %d (%s): %w", line, st.Op, err)
		}
		logger.Debug("Applied step.", zap.Int("line", line), zap.String("op", st.Op))
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	if err := sess.Commit(cctx); err != nil {
		return "", err
	}
	return sess.Document(), nil
}

func runStep(ctx context.Context, sess *session.Session, st step) error {
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	var err error
	switch st.Op {
	case "command":
		if st.Command == nil {
			return fmt.Errorf("%w: command step without command", errUnknownStep)
		}
		err = sess.Execute(*st.Command)
	case "event":
		if st.Event == nil {
			return fmt.Errorf("%w: event step without event", errUnknownStep)
		}
		err = sess.Input(*st.Event)
	case "panel":
		err = pressPanel(sess.Panel(), st)
	case "undo":
		err = sess.Undo()
	case "redo":
		err = sess.Redo()
	case "scale":
		sess.SetScale(st.Scale)
	case "mount":
		sess.Mount(st.Width, st.Height)
	case "commit":
		return sess.Commit(ctx)
	case "expect":
		if st.Expect == nil {
			return fmt.Errorf("%w: expect step without expectation", errUnknownStep)
		}
		if err := sess.Settle(ctx); err != nil {
			return err
		}
		return check(sess, *st.Expect)
	default:
		return fmt.Errorf("%w: %q", errUnknownStep, st.Op)
	}
	if err != nil {
		return err
	}
	return sess.Settle(ctx)
}

func pressPanel(p *panel.Panel, st step) error {
	switch st.Button {
	case "":
		return p.Edit(st.Field, st.Value)
	case "layerUp":
		return p.LayerUp()
	case "layerDown":
		return p.LayerDown()
	case "duplicate":
		return p.Duplicate()
	case "delete":
		return p.Delete()
	}
	return fmt.Errorf("%w: panel button %q", errUnknownStep, st.Button)
}

func check(sess *session.Session, e expectation) error {
	if e.State != "" {
		state, err := sess.State()
		if err != nil {
			return err
		}
		if state.String() != e.State {
			return fmt.Errorf("%w: state is %s, want %s", errExpectation, state, e.State)
		}
	}
	if e.Selector == "" {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sess.Document()))
	if err != nil {
		return fmt.Errorf("parsing document: %w", err)
	}
	sel := doc.Find(e.Selector)
	if e.Count != nil && sel.Length() != *e.Count {
		return fmt.Errorf("%w: %q matched %d elements, want %d", errExpectation, e.Selector, sel.Length(), *e.Count)
	}
	if e.Text == nil && len(e.Attr) == 0 && len(e.Style) == 0 {
		return nil
	}
	if sel.Length() == 0 {
		return fmt.Errorf("%w: %q matched nothing", errExpectation, e.Selector)
	}
	first := sel.First()
	if e.Text != nil {
		if got := strings.TrimSpace(first.Text()); got != *e.Text {
			return fmt.Errorf("%w: %q text is %q, want %q", errExpectation, e.Selector, got, *e.Text)
		}
	}
	for k, want := range e.Attr {
		if got, _ := first.Attr(k); got != want {
			return fmt.Errorf("%w: %q attribute %s is %q, want %q", errExpectation, e.Selector, k, got, want)
		}
	}
	inline := style.ParseInline(first.AttrOr("style", ""))
	for k, want := range e.Style {
		if got, _ := inline.Get(style.PropertyName(k)); got != want {
			return fmt.Errorf("%w: %q style %s is %q, want %q", errExpectation, e.Selector, k, got, want)
		}
	}
	return nil
}
