package agentloop

import (
	"context"
	"errors"
	"fmt"

	"github.com/martinemde/webpilot/memory"
)

// Outcome is the result of dispatching one action. Messages is never empty.
type Outcome struct {
	Messages []memory.Message
	Terminal bool
}

// Dispatcher executes one action per call against the document, the
// actuator, or the human channel.
type Dispatcher struct {
	actuator Actuator
	document *memory.Document
	human    HumanChannel
}

// NewDispatcher creates a Dispatcher. Nothing is owned; the caller keeps
// the collaborators alive.
func NewDispatcher(actuator Actuator, document *memory.Document, human HumanChannel) *Dispatcher {
	return &Dispatcher{actuator: actuator, document: document, human: human}
}

// Dispatch parses command and args and executes the result. Shape errors
// come back as feedback in the Outcome. The returned error is reserved for
// collaborator failures the loop cannot recover from.
func (d *Dispatcher) Dispatch(ctx context.Context, command string, args []string) (Outcome, error) {
	action, err := ParseAction(command, args)
	if err != nil {
		var actionErr *ActionError
		if !errors.As(err, &actionErr) {
			return Outcome{}, err
		}
		return d.rejected(ctx, actionErr)
	}
	return d.Execute(ctx, action)
}

// Execute runs an already parsed action.
func (d *Dispatcher) Execute(ctx context.Context, action Action) (Outcome, error) {
	switch a := action.(type) {
	case Complete:
		return Outcome{Messages: []memory.Message{memory.NewMessage(memory.RoleAgent, a.Text)}, Terminal: true}, nil

	case Handoff:
		asked := memory.NewMessage(memory.RoleAgent, a.Text)
		reply, err := d.human.Ask(ctx, a.Text)
		if err != nil {
			return Outcome{}, fmt.Errorf("human channel: %w", err)
		}
		return Outcome{Messages: []memory.Message{asked, memory.NewMessage(memory.RoleUser, reply)}}, nil

	case TextInsert:
		if err := d.document.Insert(a.Text, a.Line); err != nil {
			return d.documentFailure(err)
		}
		return documentOutcome(fmt.Sprintf("Text inserted at line %d", a.Line)), nil

	case TextReplace:
		if err := d.document.Replace(a.Text, a.From, a.To); err != nil {
			return d.documentFailure(err)
		}
		return documentOutcome(fmt.Sprintf("Text replaced from line %d to line %d", a.From, a.To)), nil

	case Visit:
		return d.browse(ctx, d.actuator.Visit(ctx, a.URL))
	case Click:
		return d.browse(ctx, d.actuator.Click(ctx, a.ElementID))
	case TypeText:
		return d.browse(ctx, d.actuator.Type(ctx, a.ElementID, a.Text, a.Submit))
	case Scroll:
		return d.browse(ctx, d.actuator.Scroll(ctx, a.Direction))
	case Back:
		return d.browse(ctx, d.actuator.Back(ctx))
	case Forward:
		return d.browse(ctx, d.actuator.Forward(ctx))

	case Unknown:
		return d.browse(ctx, fmt.Errorf("unknown command %q", a.Command))

	default:
		return Outcome{}, fmt.Errorf("unhandled action type %T", action)
	}
}

// rejected reports a malformed command in the voice of the component it
// was addressed to.
func (d *Dispatcher) rejected(ctx context.Context, err *ActionError) (Outcome, error) {
	switch err.Command {
	case CmdTextInsert, CmdTextReplace:
		return d.documentFailure(err)
	default:
		return d.browse(ctx, err)
	}
}

// documentFailure converts recoverable document errors into feedback.
// Tokenizer failures are not recoverable.
func (d *Dispatcher) documentFailure(err error) (Outcome, error) {
	var rangeErr *memory.RangeError
	var budgetErr *memory.BudgetError
	var actionErr *ActionError
	if !errors.As(err, &rangeErr) && !errors.As(err, &budgetErr) && !errors.As(err, &actionErr) {
		return Outcome{}, fmt.Errorf("document: %w", err)
	}
	return documentOutcome("Action unsuccessful, an error occurred: " + err.Error()), nil
}

func documentOutcome(text string) Outcome {
	return Outcome{Messages: []memory.Message{memory.NewMessage(memory.RoleDocument, text)}}
}

// browse reports the post-action browser status, prefixed with actionErr
// when the action failed. A failure to read the status is fatal.
func (d *Dispatcher) browse(ctx context.Context, actionErr error) (Outcome, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{}, ctxErr
	}
	status, err := d.status(ctx)
	if err != nil {
		return Outcome{}, err
	}
	text := "Action successful!\n" + status
	if actionErr != nil {
		text = "Action unsuccessful, an error occurred: " + actionErr.Error() + "\n" + status
	}
	return Outcome{Messages: []memory.Message{memory.NewMessage(memory.RoleActuator, text)}}, nil
}

func (d *Dispatcher) status(ctx context.Context) (string, error) {
	location, err := d.actuator.Location(ctx)
	if err != nil {
		return "", fmt.Errorf("read browser location: %w", err)
	}
	progress, err := d.actuator.ScrollProgress(ctx)
	if err != nil {
		return "", fmt.Errorf("read scroll progress: %w", err)
	}
	return FormatStatus(location, progress), nil
}

// FormatStatus renders the browser status lines appended to every browser
// feedback message.
func FormatStatus(location string, p ScrollProgress) string {
	return fmt.Sprintf("Current url: %s\nCurrent scroll position: %.2f%% (scroll-y=%d, scroll-height=%d)",
		location, p.Fraction*100, p.Offset, p.Total)
}
