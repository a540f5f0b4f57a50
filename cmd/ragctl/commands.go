package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/ragstore"
	healthuc "github.com/kailas-cloud/ragstore/internal/usecase/health"
	"github.com/kailas-cloud/ragstore/internal/version"
)

func newIngestCmd(r *runner) *cobra.Command {
	var (
		filename string
		fileRef  int64
		docType  string
		replace  bool
		meta     []string
	)
	cmd := &cobra.Command{
		Use:   "ingest [path]",
		Short: "Segment a text file and store its chunks",
		Long: `Reads a UTF-8 text file, splits it into overlapping chunks and stores them
for the tenant. With --replace every previous chunk of the document is removed first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filepath.Clean(args[0]))
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			metadata, err := parseMetadata(meta)
			if err != nil {
				return err
			}
			doc := ragstore.Document{
				Filename:     filename,
				DocumentType: docType,
				Text:         string(data),
				Metadata:     metadata,
			}
			if doc.Filename == "" {
				doc.Filename = filepath.Base(args[0])
			}
			if cmd.Flags().Changed("file-ref") {
				doc.FileRef = &fileRef
			}

			return r.withTenant(cmd, func(ctx context.Context, t tenantAPI) error {
				ingest := t.Ingest
				if replace {
					ingest = t.Reingest
				}
				res, err := ingest(ctx, doc)
				if err != nil {
					return err
				}
				if r.g.json {
					return r.printJSON(cmd, res)
				}
				cmd.Printf("Stored %d chunks of %s in %s (%d truncated, ~%d tokens)\n",
					res.Chunks, res.Filename, res.Namespace, res.Truncated, res.EstimatedTokens)
				if res.Replaced != nil {
					cmd.Printf("Replaced %s old chunks (%s)\n", res.Replaced.Deleted, res.Replaced.Method)
				}
				if !res.Quality.Valid {
					cmd.Printf("Warning: low chunk quality: %s\n", res.Quality.Reason)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filename, "filename", "", "stored filename (default: base name of path)")
	cmd.Flags().Int64Var(&fileRef, "file-ref", 0, "durable file reference")
	cmd.Flags().StringVar(&docType, "type", "", "document type")
	cmd.Flags().BoolVar(&replace, "replace", false, "replace the previous version of the document")
	cmd.Flags().StringArrayVarP(&meta, "meta", "m", nil, "metadata key=value, repeatable")
	return cmd
}

func newSearchCmd(r *runner) *cobra.Command {
	var (
		file    string
		docType string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the tenant's chunks",
		Long: `Ranks chunks by semantic similarity to the query, across all documents
or within one file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withTenant(cmd, func(ctx context.Context, t tenantAPI) error {
				var (
					hits []ragstore.Hit
					err  error
				)
				if file != "" {
					hits, err = t.SearchInFile(ctx, file, args[0], limit)
				} else {
					opts := &ragstore.SearchOptions{TopK: limit}
					if docType != "" {
						opts.Filters = ragstore.Match(ragstore.KeyDocumentType, docType)
					}
					hits, err = t.Search(ctx, args[0], opts)
				}
				if err != nil {
					return err
				}
				return r.printHits(cmd, hits, true)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "search within one filename")
	cmd.Flags().StringVar(&docType, "type", "", "restrict to a document type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (default: server setting)")
	return cmd
}

func newContextCmd(r *runner) *cobra.Command {
	var maxChunks int
	cmd := &cobra.Command{
		Use:   "context [filename]",
		Short: "Print a file's chunks in document order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withTenant(cmd, func(ctx context.Context, t tenantAPI) error {
				hits, err := t.FileContext(ctx, args[0], maxChunks)
				if err != nil {
					return err
				}
				return r.printHits(cmd, hits, false)
			})
		},
	}
	cmd.Flags().IntVar(&maxChunks, "max", 0, "maximum number of chunks (default: server setting)")
	return cmd
}

func newDeleteCmd(r *runner) *cobra.Command {
	var (
		fileRef  int64
		filename string
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a document's chunks",
		Long: `Deletes by --file-ref when given. --filename alone deletes every chunk with
that filename; together with --file-ref it also removes legacy chunks stored
without a reference.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			byRef := cmd.Flags().Changed("file-ref")
			if !byRef && filename == "" {
				return errors.New("either --file-ref or --filename is required")
			}
			return r.withTenant(cmd, func(ctx context.Context, t tenantAPI) error {
				if !byRef {
					n, err := t.DeleteByFilename(ctx, filename)
					if err != nil {
						return err
					}
					if r.g.json {
						return r.printJSON(cmd, map[string]any{"filename": filename, "deleted_chunks": n})
					}
					cmd.Printf("Deleted %s chunks of %s\n", n, filename)
					return nil
				}

				res, err := t.DeleteFile(ctx, fileRef, filename)
				if err != nil {
					return err
				}
				if r.g.json {
					return r.printJSON(cmd, res)
				}
				cmd.Printf("Deleted %s chunks of file %d (%s)\n", res.Deleted, res.FileRef, res.Method)
				if !res.Verified {
					cmd.Println("Warning: chunks with this reference are still present")
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&fileRef, "file-ref", 0, "durable file reference")
	cmd.Flags().StringVar(&filename, "filename", "", "filename")
	return cmd
}

func newPurgeCmd(r *runner) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every chunk of the tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("purge removes all of the tenant's data; pass --yes to confirm")
			}
			return r.withTenant(cmd, func(ctx context.Context, t tenantAPI) error {
				res, err := t.Purge(ctx)
				if err != nil {
					return err
				}
				if r.g.json {
					return r.printJSON(cmd, res)
				}
				cmd.Printf("Deleted %s vectors from %s (%s)\n", res.Deleted, res.Namespace, res.Method)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func newStatsCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the tenant's stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withTenant(cmd, func(ctx context.Context, t tenantAPI) error {
				st, err := t.Stats(ctx)
				if err != nil {
					return err
				}
				if r.g.json {
					return r.printJSON(cmd, st)
				}
				cmd.Printf("Namespace:  %s\n", st.Namespace)
				cmd.Printf("Documents:  %d\n", st.TotalDocuments)
				cmd.Printf("Chunks:     %d\n", st.TotalChunks)
				cmd.Printf("Vectors:    %s\n", st.RecordCount)
				if st.LastActivity != "" {
					cmd.Printf("Last write: %s\n", st.LastActivity)
				}
				if st.Truncated {
					cmd.Println("Scan limit reached: document and type counts are partial")
				}
				for typ, n := range st.DocumentTypes {
					cmd.Printf("  %-12s %d\n", typ, n)
				}
				return nil
			})
		},
	}
}

func newSummaryCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "summary [filename]",
		Short: "Describe one stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withTenant(cmd, func(ctx context.Context, t tenantAPI) error {
				sum, err := t.Summary(ctx, args[0])
				if err != nil {
					return err
				}
				if r.g.json {
					return r.printJSON(cmd, sum)
				}
				if !sum.Exists {
					cmd.Printf("%s is not stored\n", sum.Filename)
					return nil
				}
				cmd.Printf("%s: %d chunks (max #%d), type %q, created %s\n",
					sum.Filename, sum.ChunkCount, sum.MaxChunkNumber, sum.DocumentType, sum.CreatedAt)
				if sum.Truncated {
					cmd.Println("Scan limit reached: chunk count is a lower bound")
				}
				return nil
			})
		},
	}
}

func newHealthCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the index and the embedding provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withBackend(cmd, func(ctx context.Context, b backend) error {
				report := b.Health(ctx)
				if r.g.json {
					if err := r.printJSON(cmd, report); err != nil {
						return err
					}
				} else {
					cmd.Printf("Status: %s\n", report.Status)
					for name, res := range report.Checks {
						cmd.Printf("  %-18s %s\n", name, res)
					}
				}
				if report.Status == healthuc.Unhealthy {
					return errors.New("unhealthy")
				}
				return nil
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("ragctl version %s (%s, %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func (r *runner) printHits(cmd *cobra.Command, hits []ragstore.Hit, withScore bool) error {
	if r.g.json {
		return r.printJSON(cmd, hits)
	}
	if len(hits) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i := range hits {
		h := &hits[i]
		if withScore {
			cmd.Printf("[%d] %s #%d (%.3f)\n", i+1, h.Filename, h.SequenceNumber, h.Score)
		} else {
			cmd.Printf("[%d] %s #%d\n", i+1, h.Filename, h.SequenceNumber)
		}
		cmd.Printf("    %s\n\n", snippet(h.Text, 240))
	}
	return nil
}

// snippet flattens whitespace and cuts text to at most n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

// parseMetadata turns key=value pairs into metadata. Integers, floats and booleans
// keep their type.
func parseMetadata(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, val, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("metadata %q must be key=value", p)
		}
		key = strings.TrimSpace(key)
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			out[key] = i
		} else if f, err := strconv.ParseFloat(val, 64); err == nil {
			out[key] = f
		} else if b, err := strconv.ParseBool(val); err == nil {
			out[key] = b
		} else {
			out[key] = val
		}
	}
	return out, nil
}
