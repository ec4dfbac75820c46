package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// consoleCmd starts an in-process REPL against the agent pipeline
func consoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console [conversation-id]",
		Short: "Interactive console session",
		Long: `Start an interactive console session with the agent pipeline.
Provide a conversation ID to continue an existing conversation, or omit
it to start a new one. Type /help for console commands.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := initRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			conversationID := rt.ids.GenerateConversationID()
			if len(args) > 0 {
				conversationID = args[0]
				fmt.Printf("Continuing conversation %s\n", conversationID)
			} else {
				fmt.Printf("Started conversation %s\n", conversationID)
			}
			fmt.Println("Type a message, or /help for commands.")
			fmt.Println()

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}

				if strings.HasPrefix(line, "/") {
					done, err := runConsoleCommand(ctx, rt, line, &conversationID)
					if err != nil {
						fmt.Printf("error: %v\n", err)
					}
					if done {
						break
					}
					continue
				}

				result, err := rt.orchestrator.ProcessMessage(ctx, line, conversationID)
				if err != nil {
					fmt.Printf("error: %v\n", err)
					continue
				}
				fmt.Printf("slovo: %s\n", result.Response)
				if result.Confidence < 1.0 {
					fmt.Printf("       (confidence %.2f)\n", result.Confidence)
				}
				fmt.Println()
			}
			return scanner.Err()
		},
	}
}

// runConsoleCommand handles /-prefixed console commands; the boolean
// reports whether the REPL should exit.
func runConsoleCommand(ctx context.Context, rt *runtime, line string, conversationID *string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/exit", "/quit":
		fmt.Println("Goodbye!")
		return true, nil

	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help           show this help")
		fmt.Println("  /exit, /quit    end the session")
		fmt.Println("  /new            start a new conversation")
		fmt.Println("  /clear          clear the screen")
		fmt.Println("  /id             print the conversation id")
		if rt.tools != nil {
			fmt.Println("  /tools [pending]       list tools")
			fmt.Println("  /tool import <path>    import a manifest file")
			fmt.Println("  /tool openapi <url>    import from an OpenAPI spec")
			fmt.Println("  /tool approve <id>     approve a pending tool")
			fmt.Println("  /tool revoke <id>      revoke a tool")
			fmt.Println("  /tool logs <id> [n]    show execution logs")
		}
		return false, nil

	case "/new":
		*conversationID = rt.ids.GenerateConversationID()
		fmt.Printf("Started conversation %s\n", *conversationID)
		return false, nil

	case "/clear":
		fmt.Print("\033[2J\033[H")
		return false, nil

	case "/id":
		fmt.Println(*conversationID)
		return false, nil

	case "/tools":
		if rt.tools == nil {
			return false, fmt.Errorf("tool service unavailable (is Postgres running?)")
		}
		pendingOnly := len(fields) > 1 && fields[1] == "pending"
		return false, printTools(ctx, rt, pendingOnly)

	case "/tool":
		if rt.tools == nil {
			return false, fmt.Errorf("tool service unavailable (is Postgres running?)")
		}
		if len(fields) < 3 {
			return false, fmt.Errorf("usage: /tool import|openapi|approve|revoke|logs <arg>")
		}
		return false, runToolCommand(ctx, rt, fields[1], fields[2:])

	default:
		return false, fmt.Errorf("unknown command %s, try /help", fields[0])
	}
}
