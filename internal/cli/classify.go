package cli

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Knowmad79/Docbox2026/internal/classifier"
	"github.com/Knowmad79/Docbox2026/internal/llm"
	"github.com/Knowmad79/Docbox2026/internal/model"
	"github.com/Knowmad79/Docbox2026/internal/routing"
	"github.com/Knowmad79/Docbox2026/internal/vectorizer"
)

var zoneColors = map[model.Zone]*color.Color{
	model.ZoneStat:     color.New(color.FgRed, color.Bold),
	model.ZoneToday:    color.New(color.FgYellow, color.Bold),
	model.ZoneThisWeek: color.New(color.FgBlue),
	model.ZoneLater:    color.New(color.FgGreen),
}

func zoneLabel(z model.Zone) string {
	if c, ok := zoneColors[z]; ok {
		return c.Sprint(string(z))
	}
	return string(z)
}

func classifyCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify one message into an urgency zone",
		Long: `Classify one message with the rule engine, or with the configured model
when --llm is given. Nothing is stored and sender corrections are not consulted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sender, _ := cmd.Flags().GetString("sender")
			subject, _ := cmd.Flags().GetString("subject")
			snippet, _ := cmd.Flags().GetString("snippet")
			useLLM, _ := cmd.Flags().GetBool("llm")

			var client llm.Client
			if useLLM {
				client = e.llmClient()
			}
			c := classifier.New(classifier.Options{LLM: client, Logger: e.logger})
			res := c.Classify(cmd.Context(), model.EmailInput{
				Sender:  sender,
				Subject: subject,
				Snippet: snippet,
			})

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %.0f%%\n", zoneLabel(res.Zone), res.Confidence*100)
			fmt.Fprintf(out, "  reason: %s\n", res.Reason)
			engine := "llm"
			if res.Fallback {
				engine = "rules"
			}
			fmt.Fprintf(out, "  engine: %s\n", engine)
			if res.Summary != nil {
				fmt.Fprintf(out, "  summary: %s\n", *res.Summary)
			}
			if res.RecommendedAction != nil {
				fmt.Fprintf(out, "  action: %s\n", *res.RecommendedAction)
			}
			return nil
		},
	}
	cmd.Flags().StringP("sender", "f", "", "Sender address")
	cmd.Flags().StringP("subject", "s", "", "Subject line")
	cmd.Flags().String("snippet", "", "First lines of the body")
	cmd.Flags().Bool("llm", false, "Ask the configured model before falling back to rules")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}

func vectorizeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vectorize",
		Short: "Print the routed state vector for one message",
		Long: `Run the Shadow Router's extraction and routing on one message and print the
payload as JSON. Without a configured model the degraded ADMIN payload is printed.
Nothing is stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := model.EmailInput{}
			in.Sender, _ = cmd.Flags().GetString("sender")
			in.Subject, _ = cmd.Flags().GetString("subject")
			in.Body, _ = cmd.Flags().GetString("body")
			in.MessageID, _ = cmd.Flags().GetString("message-id")
			in.GrantID, _ = cmd.Flags().GetString("grant-id")

			v := vectorizer.New(e.llmClient(), vectorizer.WithLogger(e.logger))
			payload := routing.Route(v.Vectorize(cmd.Context(), in))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		},
	}
	cmd.Flags().StringP("sender", "f", "", "Sender address")
	cmd.Flags().StringP("subject", "s", "", "Subject line")
	cmd.Flags().StringP("body", "b", "", "Plain-text body")
	cmd.Flags().String("message-id", "", "Provider message id")
	cmd.Flags().String("grant-id", "", "Provider grant id")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
