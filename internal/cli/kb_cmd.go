// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jeranaias/kbchat/internal/api"
	"github.com/jeranaias/kbchat/internal/util"
)

// parseMeta turns key=value pairs into document metadata. Numeric and
// boolean values keep their type.
func parseMeta(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, usagef("metadata must be key=value, got %q", p)
		}
		switch {
		case v == "true" || v == "false":
			meta[k] = v == "true"
		default:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				meta[k] = n
			} else if f, err := strconv.ParseFloat(v, 64); err == nil {
				meta[k] = f
			} else {
				meta[k] = v
			}
		}
	}
	return meta, nil
}

func writeKnowledgeResult(w io.Writer, res *api.KnowledgeResult) error {
	msg := res.Message
	if res.DocID != "" {
		msg += " " + DimStyle.Render("("+res.DocID+")")
	}
	if res.DocumentCount != nil {
		msg += " " + DimStyle.Render(humanize.Comma(int64(*res.DocumentCount))+" documents")
	}
	_, err := fmt.Fprintln(w, SuccessStyle.Render("[OK]"), strings.TrimSpace(msg))
	return err
}

func kbCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "kb",
		Aliases: []string{"knowledge"},
		Short:   "Manage and search the knowledge base",
	}
	cmd.AddCommand(
		kbInfoCmd(app),
		kbListCmd(app),
		kbAddCmd(app),
		kbUploadCmd(app),
		kbSearchCmd(app),
		kbDeleteCmd(app),
		kbClearCmd(app),
	)
	return cmd
}

func kbInfoCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the vector collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			info, err := client.Collection(cmd.Context())
			if err != nil {
				return err
			}
			return app.emit(cmd, info, func(w io.Writer) error {
				fmt.Fprintln(w, RenderField("Collection:", info.Name))
				fmt.Fprintln(w, RenderField("Documents:", humanize.Comma(int64(info.Count))))
				for k, v := range info.Metadata {
					fmt.Fprintln(w, RenderField(k+":", fmt.Sprint(v)))
				}
				return nil
			})
		},
	}
}

func kbListCmd(app *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			list, err := client.ListDocuments(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return app.emit(cmd, list, func(w io.Writer) error {
				if len(list.Documents) == 0 {
					_, err := fmt.Fprintln(w, DimStyle.Render("The knowledge base is empty."))
					return err
				}
				rows := make([][]string, 0, len(list.Documents))
				for _, d := range list.Documents {
					source := ""
					if v, ok := d.Metadata["source"]; ok {
						source = fmt.Sprint(v)
					}
					rows = append(rows, []string{
						d.ID,
						util.TruncateWidth(source, 24),
						util.TruncateWidth(util.FirstLine(d.Content), 48),
					})
				}
				fmt.Fprintln(w, renderTable([]string{"ID", "SOURCE", "CONTENT"}, rows))
				if list.Count > len(list.Documents) {
					fmt.Fprintln(w, DimStyle.Render(fmt.Sprintf("Showing %d of %s documents.", len(list.Documents), humanize.Comma(int64(list.Count)))))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of documents")
	return cmd
}

func kbAddCmd(app *App) *cobra.Command {
	var (
		docID string
		meta  []string
	)
	cmd := &cobra.Command{
		Use:   "add <text>|-",
		Short: "Add a text document; - reads it from stdin",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args, " ")
			if content == "-" {
				data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), api.MaxUploadSize+1))
				if err != nil {
					return err
				}
				content = string(data)
			}
			metadata, err := parseMeta(meta)
			if err != nil {
				return err
			}
			client, err := app.Client()
			if err != nil {
				return err
			}
			res, err := client.AddDocument(cmd.Context(), api.KnowledgeDocument{Content: content, Metadata: metadata, DocID: docID})
			if err != nil {
				return err
			}
			return app.emit(cmd, res, func(w io.Writer) error { return writeKnowledgeResult(w, res) })
		},
	}
	cmd.Flags().StringVar(&docID, "id", "", "document id (generated by the server when empty)")
	cmd.Flags().StringArrayVarP(&meta, "meta", "m", nil, "metadata key=value (repeatable)")
	return cmd
}

func kbUploadCmd(app *App) *cobra.Command {
	var meta []string
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload text files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := parseMeta(meta)
			if err != nil {
				return err
			}
			client, err := app.Client()
			if err != nil {
				return err
			}

			results := make([]*api.KnowledgeResult, 0, len(args))
			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return err
				}
				if info.Size() > api.MaxUploadSize {
					return usagef("%s is %s; the upload limit is %s", path,
						humanize.Bytes(uint64(info.Size())), humanize.Bytes(api.MaxUploadSize))
				}
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				res, err := client.UploadDocument(cmd.Context(), filepath.Base(path), f, metadata)
				f.Close()
				if err != nil {
					return fmt.Errorf("upload %s: %w", path, err)
				}
				results = append(results, res)
				if !app.flags.json {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", SuccessStyle.Render("[OK]"), path,
						DimStyle.Render(humanize.Bytes(uint64(info.Size()))))
				}
			}
			if app.flags.json {
				return NewJSONResponse(cmd.CommandPath(), results).Write(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&meta, "meta", "m", nil, "metadata key=value applied to every file (repeatable)")
	return cmd
}

func kbSearchCmd(app *App) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base by meaning",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			res, err := client.SearchKnowledge(cmd.Context(), strings.Join(args, " "), k)
			if err != nil {
				return err
			}
			return app.emit(cmd, res, func(w io.Writer) error {
				if len(res.Results) == 0 {
					_, err := fmt.Fprintln(w, DimStyle.Render("No matching passages."))
					return err
				}
				width := terminalWidth(w)
				for i, hit := range res.Results {
					label := hit.Document().Source()
					if label == "" {
						label = fmt.Sprintf("Document %d", i+1)
					}
					score := ""
					if hit.Score != nil {
						score = DimStyle.Render(fmt.Sprintf(" (score %.3f)", *hit.Score))
					}
					fmt.Fprintf(w, "%s %s%s\n", SectionStyle.Render(fmt.Sprintf("%d.", i+1)), label, score)
					fmt.Fprintln(w, indent(util.TruncateRunes(strings.TrimSpace(hit.Content), 4*width), "   "))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", api.DefaultSearchK, "number of passages")
	return cmd
}

func kbDeleteCmd(app *App) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:     "delete <doc-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a document",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.confirm(cmd, confirmed, "delete this document", map[string]string{"Document": args[0]}); err != nil {
				return err
			}
			client, err := app.Client()
			if err != nil {
				return err
			}
			res, err := client.DeleteDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.emit(cmd, res, func(w io.Writer) error { return writeKnowledgeResult(w, res) })
		},
	}
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "skip the confirmation prompt")
	return cmd
}

func kbClearCmd(app *App) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every document from the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.confirm(cmd, confirmed, "remove ALL documents from the knowledge base", nil); err != nil {
				return err
			}
			client, err := app.Client()
			if err != nil {
				return err
			}
			res, err := client.ClearCollection(cmd.Context())
			if err != nil {
				return err
			}
			return app.emit(cmd, res, func(w io.Writer) error { return writeKnowledgeResult(w, res) })
		},
	}
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "skip the confirmation prompt")
	return cmd
}
