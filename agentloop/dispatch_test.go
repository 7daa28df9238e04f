package agentloop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/webpilot/memory"
)

const wantStatus = "Current url: about:blank\nCurrent scroll position: 25.00% (scroll-y=500, scroll-height=2000)"

func newTestDispatcher(t *testing.T, maxTokens int) (*Dispatcher, *fakeActuator, *memory.Document, *cannedHuman) {
	t.Helper()
	doc, err := memory.NewDocument(maxTokens, wordTokenizer)
	require.NoError(t, err)
	act := newFakeActuator()
	human := &cannedHuman{reply: "blue"}
	return NewDispatcher(act, doc, human), act, doc, human
}

func TestDispatchComplete(t *testing.T) {
	d, act, _, _ := newTestDispatcher(t, 100)

	out, err := d.Dispatch(context.Background(), "COMPLETE", []string{"done"})
	require.NoError(t, err)
	assert.True(t, out.Terminal)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, memory.RoleAgent, out.Messages[0].Role)
	assert.Equal(t, "done", out.Messages[0].Content)
	assert.Empty(t, act.calls)
}

func TestDispatchHandoff(t *testing.T) {
	for _, cmd := range []string{"YIELD", "ASK"} {
		t.Run(cmd, func(t *testing.T) {
			d, _, _, human := newTestDispatcher(t, 100)

			out, err := d.Dispatch(context.Background(), cmd, []string{"favourite colour?"})
			require.NoError(t, err)
			assert.False(t, out.Terminal)
			require.Len(t, out.Messages, 2)
			assert.Equal(t, memory.RoleAgent, out.Messages[0].Role)
			assert.Equal(t, "favourite colour?", out.Messages[0].Content)
			assert.Equal(t, memory.RoleUser, out.Messages[1].Role)
			assert.Equal(t, "blue", out.Messages[1].Content)
			assert.Equal(t, []string{"favourite colour?"}, human.asked)
		})
	}
}

func TestDispatchHandoffFailureIsFatal(t *testing.T) {
	d, _, _, human := newTestDispatcher(t, 100)
	human.err = errors.New("stdin closed")

	_, err := d.Dispatch(context.Background(), "ASK", []string{"?"})
	require.Error(t, err)
	assert.ErrorIs(t, err, human.err)
}

func TestDispatchTextInsert(t *testing.T) {
	d, _, doc, _ := newTestDispatcher(t, 100)
	ctx := context.Background()

	out, err := d.Dispatch(ctx, "TINSERT", []string{"1", "hello"})
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, memory.RoleDocument, out.Messages[0].Role)
	assert.Equal(t, "Text inserted at line 1", out.Messages[0].Content)

	_, err = d.Dispatch(ctx, "TINSERT", []string{"1", "world"})
	require.NoError(t, err)
	assert.Equal(t, []string{"world", "hello"}, doc.Lines())
}

func TestDispatchTextReplace(t *testing.T) {
	d, _, doc, _ := newTestDispatcher(t, 100)
	ctx := context.Background()
	require.NoError(t, doc.Insert("a\nb\nc", 1))

	out, err := d.Dispatch(ctx, "TREPLACE", []string{"2", "3", "x"})
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, "Text replaced from line 2 to line 3", out.Messages[0].Content)
	assert.Equal(t, []string{"a", "x"}, doc.Lines())
}

func TestDispatchDocumentFailures(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    []string
		want    string
	}{
		{"insert out of range", "TINSERT", []string{"5", "x"}, "Action unsuccessful, an error occurred: cannot insert at line 5: valid lines are 1 to 2"},
		{"replace reversed", "TREPLACE", []string{"1", "0", "x"}, "Action unsuccessful, an error occurred: cannot replace lines 1-0: start line is after end line"},
		{"bad line number", "TINSERT", []string{"first", "x"}, `Action unsuccessful, an error occurred: invalid TINSERT command: line number "first" is not an integer`},
		{"over budget", "TINSERT", []string{"1", "one two three four five"}, "Action unsuccessful, an error occurred: "},
		{"insert missing text", "TINSERT", []string{"1"}, "invalid TINSERT command: expected <LINE_NO> <TEXT>"},
		{"replace missing text", "TREPLACE", []string{"1", "1"}, "invalid TREPLACE command: expected <FROM_LINE_NO> <TO_LINE_NO> <TEXT>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, doc, _ := newTestDispatcher(t, 4)
			require.NoError(t, doc.Insert("kept", 1))

			out, err := d.Dispatch(context.Background(), tt.command, tt.args)
			require.NoError(t, err)
			assert.False(t, out.Terminal)
			require.Len(t, out.Messages, 1)
			assert.Equal(t, memory.RoleDocument, out.Messages[0].Role)
			assert.Contains(t, out.Messages[0].Content, tt.want)
			assert.Equal(t, []string{"kept"}, doc.Lines(), "failed edits leave the document unchanged")
		})
	}
}

func TestDispatchDocumentTokenizerFailureIsFatal(t *testing.T) {
	boom := errors.New("tokenizer down")
	doc, err := memory.NewDocument(100, func(string) (int, error) { return 0, boom })
	require.NoError(t, err)
	d := NewDispatcher(newFakeActuator(), doc, &cannedHuman{})

	_, err = d.Dispatch(context.Background(), "TINSERT", []string{"1", "x"})
	assert.ErrorIs(t, err, boom)
}

func TestDispatchTypeMissingTextTouchesNothing(t *testing.T) {
	for _, command := range []string{"TYPE", "TYPESUBMIT"} {
		t.Run(command, func(t *testing.T) {
			d, act, _, _ := newTestDispatcher(t, 100)

			out, err := d.Dispatch(context.Background(), command, []string{"3"})
			require.NoError(t, err)
			require.Len(t, out.Messages, 1)
			assert.Equal(t, memory.RoleActuator, out.Messages[0].Role)
			assert.Equal(t, "Action unsuccessful, an error occurred: invalid "+command+" command: expected <ID> <TEXT>\n"+wantStatus,
				out.Messages[0].Content)
			assert.Empty(t, act.calls, "no input is cleared or submitted")
		})
	}
}

func TestDispatchBrowserCommands(t *testing.T) {
	tests := []struct {
		command string
		args    []string
		call    string
	}{
		{"VISIT", []string{"example.com"}, "visit https://example.com"},
		{"CLICK", []string{"4"}, "click 4"},
		{"TYPE", []string{"2", "paper", "clips"}, `type 2 "paper clips" submit=false`},
		{"TYPESUBMIT", []string{"2", "paperclips"}, `type 2 "paperclips" submit=true`},
		{"SUP", nil, "scroll up"},
		{"SDOWN", nil, "scroll down"},
		{"BACK", nil, "back"},
		{"FORWARD", nil, "forward"},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			d, act, _, _ := newTestDispatcher(t, 100)

			out, err := d.Dispatch(context.Background(), tt.command, tt.args)
			require.NoError(t, err)
			assert.False(t, out.Terminal)
			assert.Equal(t, []string{tt.call}, act.calls)
			require.Len(t, out.Messages, 1)
			assert.Equal(t, memory.RoleActuator, out.Messages[0].Role)
			want := "Action successful!\n" + FormatStatus(act.location, act.progress)
			assert.Equal(t, want, out.Messages[0].Content)
		})
	}
}

func TestDispatchBrowserFailureCarriesStatus(t *testing.T) {
	d, act, _, _ := newTestDispatcher(t, 100)
	act.failWith = errors.New("no element with id 99")

	out, err := d.Dispatch(context.Background(), "CLICK", []string{"99"})
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, memory.RoleActuator, out.Messages[0].Role)
	assert.Equal(t, "Action unsuccessful, an error occurred: no element with id 99\n"+wantStatus, out.Messages[0].Content)
}

func TestDispatchInvalidBrowserArgs(t *testing.T) {
	d, act, _, _ := newTestDispatcher(t, 100)

	out, err := d.Dispatch(context.Background(), "CLICK", []string{"the button"})
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, memory.RoleActuator, out.Messages[0].Role)
	assert.Contains(t, out.Messages[0].Content, `element id "the button" is not an integer`)
	assert.Contains(t, out.Messages[0].Content, wantStatus)
	assert.Empty(t, act.calls, "malformed commands never reach the browser")
}

func TestDispatchUnknownCommand(t *testing.T) {
	d, act, doc, _ := newTestDispatcher(t, 100)

	out, err := d.Dispatch(context.Background(), "DANCE", []string{"now"})
	require.NoError(t, err)
	assert.False(t, out.Terminal)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, "Action unsuccessful, an error occurred: unknown command \"DANCE\"\n"+wantStatus, out.Messages[0].Content)
	assert.Empty(t, act.calls)
	assert.Zero(t, doc.Len())
}

func TestDispatchStatusFailureIsFatal(t *testing.T) {
	d, act, _, _ := newTestDispatcher(t, 100)
	act.statusErr = errors.New("browser crashed")

	_, err := d.Dispatch(context.Background(), "SDOWN", nil)
	assert.ErrorIs(t, err, act.statusErr)
}

func TestDispatchCancelledContext(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, "BACK", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEveryDispatchYieldsFeedback(t *testing.T) {
	commands := []struct {
		command string
		args    []string
	}{
		{"COMPLETE", nil}, {"YIELD", nil}, {"ASK", []string{"?"}},
		{"TINSERT", []string{"1", "a"}}, {"TINSERT", nil}, {"TREPLACE", []string{"9", "9", "z"}},
		{"VISIT", []string{"%%%"}}, {"CLICK", []string{"1"}}, {"TYPE", []string{"1"}},
		{"TYPESUBMIT", []string{"x"}}, {"SUP", nil}, {"SDOWN", nil},
		{"BACK", nil}, {"FORWARD", nil}, {"", nil}, {"FLY", []string{"away"}},
	}
	d, act, _, _ := newTestDispatcher(t, 100)
	act.failWith = errors.New("flaky")
	for _, c := range commands {
		out, err := d.Dispatch(context.Background(), c.command, c.args)
		require.NoError(t, err, c.command)
		assert.NotEmpty(t, out.Messages, c.command)
		assert.Equal(t, c.command == "COMPLETE", out.Terminal, c.command)
	}
}
