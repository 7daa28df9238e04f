// Package agentloop runs an autonomous browser agent one action at a time.
//
// Each turn the Session renders the visible page, the interaction history
// and the agent's text file into a prompt, asks an Oracle for exactly one
// command, and hands that command to the Dispatcher. The Dispatcher turns
// it into a side effect on the browser (Actuator), the text file
// (memory.Document) or the human (HumanChannel) and always answers with at
// least one feedback message, which goes back into the history so the
// oracle sees the consequence of its own action on the next turn. Only
// COMPLETE ends a run; malformed or failing commands become feedback.
//
// # Architecture
//
//   - Session: owns the history and the document, drives turns, enforces
//     the turn limit and loop detection, and emits events.
//   - Dispatcher: maps one parsed Action to its effect and feedback.
//   - Action: a tagged variant per command, built and validated by
//     ParseAction.
//   - LLMOracle and NewLLMSummarizer: language-model backed collaborators
//     built on the llm package.
//   - EventEmitter: typed event stream for host application integration.
//
// # Quick Start
//
//	client := llm.NewClient(llm.WithProvider(provider))
//	session, err := agentloop.NewSession(agentloop.Collaborators{
//	    Actuator:   browser,
//	    Oracle:     agentloop.NewLLMOracle(client, "gpt-4o"),
//	    Human:      agentloop.NewConsoleChannel(os.Stdin, os.Stdout),
//	    Tokenizer:  memory.ApproxTokenizer,
//	    Summarizer: agentloop.NewLLMSummarizer(client, "gpt-4o"),
//	}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	if err := session.Run(ctx, "Find the opening hours of the city library"); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(session.Deliverable())
package agentloop
