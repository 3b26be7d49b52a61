// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jeranaias/kbchat/internal/api"
)

// =============================================================================
// SHARED
// =============================================================================

// maskKey hides all but the last four characters of an API key.
// SECURITY: keys are never printed in full.
func maskKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 4:
		return "****"
	default:
		return "****" + key[len(key)-4:]
	}
}

func writeStatus(w io.Writer, st *api.ConfigStatus) error {
	msg := st.Message
	if msg == "" {
		msg = st.Status
	}
	_, err := fmt.Fprintln(w, RenderStatus(st.Status), msg)
	return err
}

func writeModels(w io.Writer, models []string) error {
	if len(models) == 0 {
		_, err := fmt.Fprintln(w, DimStyle.Render("No models reported."))
		return err
	}
	for _, m := range models {
		fmt.Fprintln(w, "  "+m)
	}
	return nil
}

// statusCmd builds a command that performs one provider mutation.
func statusCmd(app *App, use, short string, destructive bool, run func(cmd *cobra.Command, client *api.Client) (*api.ConfigStatus, error)) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if destructive {
				if err := app.confirm(cmd, confirmed, strings.ToLower(short[:1])+short[1:], nil); err != nil {
					return err
				}
			}
			client, err := app.Client()
			if err != nil {
				return err
			}
			st, err := run(cmd, client)
			if st == nil {
				return err
			}
			if perr := app.emit(cmd, st, func(w io.Writer) error { return writeStatus(w, st) }); perr != nil {
				return perr
			}
			return err
		},
	}
	if destructive {
		cmd.Flags().BoolVar(&confirmed, "confirm", false, "skip the confirmation prompt")
	}
	return cmd
}

// =============================================================================
// LLM
// =============================================================================

// llmFlags binds the LLMConfig fields to flags. Only flags the user set are
// applied over the current configuration.
type llmFlags struct {
	provider         string
	apiBase          string
	apiKey           string
	model            string
	temperature      float64
	maxTokens        int
	topP             float64
	frequencyPenalty float64
	presencePenalty  float64
}

func (f *llmFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.provider, "provider", "", "provider name, e.g. openai or ollama")
	fs.StringVar(&f.apiBase, "api-base", "", "provider base URL")
	fs.StringVar(&f.apiKey, "api-key", "", "provider API key")
	fs.StringVar(&f.model, "model", "", "model name")
	fs.Float64Var(&f.temperature, "temperature", 0, "sampling temperature (0-2)")
	fs.IntVar(&f.maxTokens, "max-tokens", 0, "maximum answer tokens")
	fs.Float64Var(&f.topP, "top-p", 0, "nucleus sampling (0-1)")
	fs.Float64Var(&f.frequencyPenalty, "frequency-penalty", 0, "frequency penalty")
	fs.Float64Var(&f.presencePenalty, "presence-penalty", 0, "presence penalty")
}

func (f *llmFlags) apply(fs *pflag.FlagSet, c *api.LLMConfig) {
	if fs.Changed("provider") {
		c.Provider = f.provider
	}
	if fs.Changed("api-base") {
		c.APIBase = f.apiBase
	}
	if fs.Changed("api-key") {
		c.APIKey = f.apiKey
	}
	if fs.Changed("model") {
		c.ModelName = f.model
	}
	if fs.Changed("temperature") {
		c.Temperature = f.temperature
	}
	if fs.Changed("max-tokens") {
		c.MaxTokens = f.maxTokens
	}
	if fs.Changed("top-p") {
		c.TopP = f.topP
	}
	if fs.Changed("frequency-penalty") {
		c.FrequencyPenalty = f.frequencyPenalty
	}
	if fs.Changed("presence-penalty") {
		c.PresencePenalty = f.presencePenalty
	}
}

func writeLLMConfig(w io.Writer, c api.LLMConfig, status string) {
	if status != "" {
		fmt.Fprintln(w, RenderStatus(status), "LLM provider")
	}
	fmt.Fprintln(w, RenderField("Provider:", c.Provider))
	fmt.Fprintln(w, RenderField("API base:", c.APIBase))
	fmt.Fprintln(w, RenderField("API key:", maskKey(c.APIKey)))
	fmt.Fprintln(w, RenderField("Model:", c.ModelName))
	fmt.Fprintln(w, RenderField("Temperature:", strconv.FormatFloat(c.Temperature, 'g', -1, 64)))
	fmt.Fprintln(w, RenderField("Max tokens:", strconv.Itoa(c.MaxTokens)))
	fmt.Fprintln(w, RenderField("Top p:", strconv.FormatFloat(c.TopP, 'g', -1, 64)))
	fmt.Fprintln(w, RenderField("Frequency penalty:", strconv.FormatFloat(c.FrequencyPenalty, 'g', -1, 64)))
	fmt.Fprintln(w, RenderField("Presence penalty:", strconv.FormatFloat(c.PresencePenalty, 'g', -1, 64)))
}

func llmCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "llm",
		Short: "Show and change the chat model provider",
	}

	var defaults bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the active LLM configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			if defaults {
				c, err := client.DefaultLLMConfig(cmd.Context())
				if err != nil {
					return err
				}
				c.APIKey = ""
				return app.emit(cmd, c, func(w io.Writer) error {
					writeLLMConfig(w, *c, "")
					return nil
				})
			}
			res, err := client.GetLLMConfig(cmd.Context())
			if err != nil {
				return err
			}
			res.Config.APIKey = maskKey(res.Config.APIKey)
			return app.emit(cmd, res, func(w io.Writer) error {
				writeLLMConfig(w, res.Config, res.Status)
				return nil
			})
		},
	}
	show.Flags().BoolVar(&defaults, "defaults", false, "show the server defaults instead")

	var setFlags, testFlags llmFlags
	set := &cobra.Command{
		Use:   "set",
		Short: "Change LLM settings; unspecified fields keep their value",
		Example: `  kbchat llm set --model gpt-4o-mini --temperature 0.2
  kbchat llm set --provider ollama --api-base http://localhost:11434 --model llama3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().NFlag() == 0 {
				return usagef("nothing to change; see 'kbchat llm set --help'")
			}
			client, err := app.Client()
			if err != nil {
				return err
			}
			cur, err := client.GetLLMConfig(cmd.Context())
			if err != nil {
				return err
			}
			next := cur.Config
			setFlags.apply(cmd.Flags(), &next)
			st, err := client.UpdateLLMConfig(cmd.Context(), next)
			if err != nil {
				return err
			}
			return app.emit(cmd, st, func(w io.Writer) error { return writeStatus(w, st) })
		},
	}
	setFlags.register(set.Flags())

	test := statusCmd(app, "test", "Try LLM settings without saving them", false,
		func(cmd *cobra.Command, client *api.Client) (*api.ConfigStatus, error) {
			cur, err := client.GetLLMConfig(cmd.Context())
			if err != nil {
				return nil, err
			}
			next := cur.Config
			testFlags.apply(cmd.Flags(), &next)
			return client.TestLLMConfig(cmd.Context(), next)
		})
	testFlags.register(test.Flags())

	models := &cobra.Command{
		Use:   "models",
		Short: "List models offered by the configured provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			list, err := client.LLMModels(cmd.Context())
			if err != nil {
				return err
			}
			return app.emit(cmd, list, func(w io.Writer) error { return writeModels(w, list) })
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Print the LLM configuration as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			data, err := client.ExportLLMConfig(cmd.Context())
			if err != nil {
				return err
			}
			return app.emit(cmd, data, func(w io.Writer) error {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(data)
			})
		},
	}

	cmd.AddCommand(
		show, set, test, models, exportCmd,
		statusCmd(app, "reset", "Restore the server's default LLM configuration", true,
			func(cmd *cobra.Command, client *api.Client) (*api.ConfigStatus, error) {
				return client.ResetLLMConfig(cmd.Context())
			}),
		statusCmd(app, "reinit", "Reconnect the backend to the LLM provider", false,
			func(cmd *cobra.Command, client *api.Client) (*api.ConfigStatus, error) {
				return client.ReinitializeLLM(cmd.Context())
			}),
	)
	return cmd
}

// =============================================================================
// EMBEDDING
// =============================================================================

type embeddingFlags struct {
	provider  string
	baseURL   string
	model     string
	apiKey    string
	dimension int
}

func (f *embeddingFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.provider, "provider", "", "provider name")
	fs.StringVar(&f.baseURL, "base-url", "", "provider base URL")
	fs.StringVar(&f.model, "model", "", "embedding model name")
	fs.StringVar(&f.apiKey, "api-key", "", "provider API key")
	fs.IntVar(&f.dimension, "dimension", 0, "embedding vector dimension")
}

func (f *embeddingFlags) apply(fs *pflag.FlagSet, c *api.EmbeddingConfig) {
	if fs.Changed("provider") {
		c.Provider = f.provider
	}
	if fs.Changed("base-url") {
		c.BaseURL = f.baseURL
	}
	if fs.Changed("model") {
		c.ModelName = f.model
	}
	if fs.Changed("api-key") {
		c.APIKey = f.apiKey
	}
	if fs.Changed("dimension") {
		c.Dimension = f.dimension
	}
}

func writeEmbeddingConfig(w io.Writer, c api.EmbeddingConfig, status string) {
	if status != "" {
		fmt.Fprintln(w, RenderStatus(status), "Embedding provider")
	}
	fmt.Fprintln(w, RenderField("Provider:", c.Provider))
	fmt.Fprintln(w, RenderField("Base URL:", c.BaseURL))
	fmt.Fprintln(w, RenderField("API key:", maskKey(c.APIKey)))
	fmt.Fprintln(w, RenderField("Model:", c.ModelName))
	fmt.Fprintln(w, RenderField("Dimension:", strconv.Itoa(c.Dimension)))
}

func embeddingCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "embedding",
		Aliases: []string{"embed"},
		Short:   "Show and change the embedding model provider",
	}

	var defaults bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the active embedding configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			if defaults {
				c, err := client.DefaultEmbeddingConfig(cmd.Context())
				if err != nil {
					return err
				}
				c.APIKey = ""
				return app.emit(cmd, c, func(w io.Writer) error {
					writeEmbeddingConfig(w, *c, "")
					return nil
				})
			}
			res, err := client.GetEmbeddingConfig(cmd.Context())
			if err != nil {
				return err
			}
			res.Config.APIKey = maskKey(res.Config.APIKey)
			return app.emit(cmd, res, func(w io.Writer) error {
				writeEmbeddingConfig(w, res.Config, res.Status)
				return nil
			})
		},
	}
	show.Flags().BoolVar(&defaults, "defaults", false, "show the server defaults instead")

	var setFlags, testFlags embeddingFlags
	set := &cobra.Command{
		Use:   "set",
		Short: "Change embedding settings; unspecified fields keep their value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().NFlag() == 0 {
				return usagef("nothing to change; see 'kbchat embedding set --help'")
			}
			client, err := app.Client()
			if err != nil {
				return err
			}
			cur, err := client.GetEmbeddingConfig(cmd.Context())
			if err != nil {
				return err
			}
			next := cur.Config
			setFlags.apply(cmd.Flags(), &next)
			st, err := client.UpdateEmbeddingConfig(cmd.Context(), next)
			if err != nil {
				return err
			}
			return app.emit(cmd, st, func(w io.Writer) error { return writeStatus(w, st) })
		},
	}
	setFlags.register(set.Flags())

	test := statusCmd(app, "test", "Try embedding settings without saving them", false,
		func(cmd *cobra.Command, client *api.Client) (*api.ConfigStatus, error) {
			cur, err := client.GetEmbeddingConfig(cmd.Context())
			if err != nil {
				return nil, err
			}
			next := cur.Config
			testFlags.apply(cmd.Flags(), &next)
			return client.TestEmbeddingConfig(cmd.Context(), next)
		})
	testFlags.register(test.Flags())

	listModels := func(refresh bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			var list []string
			if refresh {
				list, err = client.RefreshEmbeddingModels(cmd.Context())
			} else {
				list, err = client.EmbeddingModels(cmd.Context())
			}
			if err != nil {
				return err
			}
			return app.emit(cmd, list, func(w io.Writer) error { return writeModels(w, list) })
		}
	}

	cmd.AddCommand(
		show, set, test,
		&cobra.Command{
			Use:   "models",
			Short: "List embedding models offered by the provider",
			Args:  cobra.NoArgs,
			RunE:  listModels(false),
		},
		&cobra.Command{
			Use:   "refresh",
			Short: "Re-query the provider for its embedding models",
			Args:  cobra.NoArgs,
			RunE:  listModels(true),
		},
		statusCmd(app, "reset", "Restore the server's default embedding configuration", true,
			func(cmd *cobra.Command, client *api.Client) (*api.ConfigStatus, error) {
				return client.ResetEmbeddingConfig(cmd.Context())
			}),
	)
	return cmd
}
