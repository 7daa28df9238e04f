package agentloop

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Command names understood by the dispatcher.
const (
	CmdComplete    = "COMPLETE"
	CmdYield       = "YIELD"
	CmdAsk         = "ASK"
	CmdTextInsert  = "TINSERT"
	CmdTextReplace = "TREPLACE"
	CmdVisit       = "VISIT"
	CmdClick       = "CLICK"
	CmdType        = "TYPE"
	CmdTypeSubmit  = "TYPESUBMIT"
	CmdScrollUp    = "SUP"
	CmdScrollDown  = "SDOWN"
	CmdBack        = "BACK"
	CmdForward     = "FORWARD"
)

// Action is one parsed oracle command. Each command has its own variant.
type Action interface {
	// Name returns the command name the action was parsed from.
	Name() string
	isAction()
}

// Complete ends the run.
type Complete struct {
	Text string
}

// Handoff surfaces text to the human and waits for a reply (YIELD and ASK).
type Handoff struct {
	Command string `validate:"oneof=YIELD ASK"`
	Text    string
}

// TextInsert inserts text into the document before Line.
type TextInsert struct {
	Line int
	Text string
}

// TextReplace replaces the inclusive line range From..To.
type TextReplace struct {
	From int
	To   int
	Text string
}

// Visit navigates to URL. The URL always carries a scheme once parsed.
type Visit struct {
	URL string `validate:"required,url"`
}

// Click clicks a rendered element.
type Click struct {
	ElementID int `validate:"gte=0"`
}

// TypeText types into a rendered element, optionally submitting the form.
type TypeText struct {
	ElementID int `validate:"gte=0"`
	Text      string
	Submit    bool
}

// Scroll moves the viewport by one page.
type Scroll struct {
	Direction ScrollDirection `validate:"oneof=up down"`
}

// Back navigates back in the browser history.
type Back struct{}

// Forward navigates forward in the browser history.
type Forward struct{}

// Unknown is any command the dispatcher does not recognize.
type Unknown struct {
	Command string
	Args    []string
}

func (Complete) Name() string    { return CmdComplete }
func (h Handoff) Name() string   { return h.Command }
func (TextInsert) Name() string  { return CmdTextInsert }
func (TextReplace) Name() string { return CmdTextReplace }
func (Visit) Name() string       { return CmdVisit }
func (Click) Name() string       { return CmdClick }
func (t TypeText) Name() string {
	if t.Submit {
		return CmdTypeSubmit
	}
	return CmdType
}
func (s Scroll) Name() string {
	if s.Direction == ScrollUp {
		return CmdScrollUp
	}
	return CmdScrollDown
}
func (Back) Name() string      { return CmdBack }
func (Forward) Name() string   { return CmdForward }
func (u Unknown) Name() string { return u.Command }

func (Complete) isAction()    {}
func (Handoff) isAction()     {}
func (TextInsert) isAction()  {}
func (TextReplace) isAction() {}
func (Visit) isAction()       {}
func (Click) isAction()       {}
func (TypeText) isAction()    {}
func (Scroll) isAction()      {}
func (Back) isAction()        {}
func (Forward) isAction()     {}
func (Unknown) isAction()     {}

// ActionError reports an oracle command whose arguments do not fit the
// command's shape. It is recoverable: the dispatcher turns it into feedback.
type ActionError struct {
	Command string
	Reason  string
	Err     error
}

func (e *ActionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s command: %s: %v", e.Command, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s command: %s", e.Command, e.Reason)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseAction builds the Action variant for command. Text arguments that the
// oracle split into several words are joined back with single spaces. An
// unrecognized command yields Unknown, not an error.
func ParseAction(command string, args []string) (Action, error) {
	name := strings.ToUpper(strings.TrimSpace(command))

	var action Action
	switch name {
	case CmdComplete:
		action = Complete{Text: joinArgs(args)}
	case CmdYield, CmdAsk:
		action = Handoff{Command: name, Text: joinArgs(args)}
	case CmdTextInsert:
		if len(args) < 2 {
			return nil, &ActionError{Command: name, Reason: "expected <LINE_NO> <TEXT>"}
		}
		line, err := parseInt(name, "line number", args[0])
		if err != nil {
			return nil, err
		}
		action = TextInsert{Line: line, Text: joinArgs(args[1:])}
	case CmdTextReplace:
		if len(args) < 3 {
			return nil, &ActionError{Command: name, Reason: "expected <FROM_LINE_NO> <TO_LINE_NO> <TEXT>"}
		}
		from, err := parseInt(name, "from line number", args[0])
		if err != nil {
			return nil, err
		}
		to, err := parseInt(name, "to line number", args[1])
		if err != nil {
			return nil, err
		}
		action = TextReplace{From: from, To: to, Text: joinArgs(args[2:])}
	case CmdVisit:
		if len(args) < 1 || strings.TrimSpace(args[0]) == "" {
			return nil, &ActionError{Command: name, Reason: "expected <URL>"}
		}
		action = Visit{URL: NormalizeURL(args[0])}
	case CmdClick:
		if len(args) < 1 {
			return nil, &ActionError{Command: name, Reason: "expected <ID>"}
		}
		id, err := parseInt(name, "element id", args[0])
		if err != nil {
			return nil, err
		}
		action = Click{ElementID: id}
	case CmdType, CmdTypeSubmit:
		if len(args) < 2 {
			return nil, &ActionError{Command: name, Reason: "expected <ID> <TEXT>"}
		}
		id, err := parseInt(name, "element id", args[0])
		if err != nil {
			return nil, err
		}
		action = TypeText{ElementID: id, Text: joinArgs(args[1:]), Submit: name == CmdTypeSubmit}
	case CmdScrollUp:
		action = Scroll{Direction: ScrollUp}
	case CmdScrollDown:
		action = Scroll{Direction: ScrollDown}
	case CmdBack:
		action = Back{}
	case CmdForward:
		action = Forward{}
	default:
		return Unknown{Command: strings.TrimSpace(command), Args: args}, nil
	}

	if err := validate.Struct(action); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, &ActionError{Command: name, Reason: describeField(verrs[0]), Err: err}
		}
		return nil, &ActionError{Command: name, Reason: "invalid arguments", Err: err}
	}
	return action, nil
}

// NormalizeURL trims the target and prefixes https:// when no scheme is given.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" || strings.Contains(u, "://") || strings.HasPrefix(u, "about:") {
		return u
	}
	return "https://" + u
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

func parseInt(command, what, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &ActionError{Command: command, Reason: fmt.Sprintf("%s %q is not an integer", what, raw)}
	}
	return n, nil
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "url":
		return fmt.Sprintf("%q is not a valid URL", fe.Value())
	case "required":
		return fmt.Sprintf("%s is required", strings.ToLower(fe.Field()))
	case "gte":
		return fmt.Sprintf("%s must be >= %s", strings.ToLower(fe.Field()), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", strings.ToLower(fe.Field()), fe.Tag())
	}
}
