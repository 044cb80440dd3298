package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/orneryd/yggdrasil/pkg/linker"
	"github.com/orneryd/yggdrasil/pkg/storage"
	"github.com/orneryd/yggdrasil/pkg/yggdrasil"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	var weight float64
	var inactive bool
	add := &cobra.Command{
		Use:   "add <id> [name]",
		Short: "Register a project",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			return withDB(func(db *yggdrasil.DB) error {
				name := args[0]
				if len(args) > 1 {
					name = args[1]
				}
				return db.Registry().Register(&storage.Project{
					ID:     args[0],
					Name:   name,
					Active: !inactive,
					Weight: weight,
				})
			})
		},
	}
	add.Flags().Float64Var(&weight, "weight", 0, "ranking weight (0.1-2.0, default 1.0)")
	add.Flags().BoolVar(&inactive, "inactive", false, "exclude from cross-project search")

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withDB(func(db *yggdrasil.DB) error {
				projects, err := db.Registry().All()
				if err != nil {
					return err
				}
				for _, p := range projects {
					state := "active"
					if !p.Active {
						state = "inactive"
					}
					printf("%s\t%s\tweight=%.1f\tnodes=%d\t%s\n",
						p.ID, state, p.Weight, p.NodeCount, p.Name)
				}
				return nil
			})
		},
	}

	setWeight := &cobra.Command{
		Use:   "weight <id> <weight>",
		Short: "Set a project's ranking weight",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return withDB(func(db *yggdrasil.DB) error {
				var w float64
				if _, err := fmt.Sscanf(args[1], "%g", &w); err != nil {
					return fmt.Errorf("bad weight %q: %w", args[1], err)
				}
				return db.Registry().SetWeight(args[0], w)
			})
		},
	}

	activate := &cobra.Command{
		Use:   "activate <id>",
		Short: "Include a project in cross-project search",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withDB(func(db *yggdrasil.DB) error {
				return db.Registry().SetActive(args[0], true)
			})
		},
	}

	deactivate := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Exclude a project from cross-project search",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withDB(func(db *yggdrasil.DB) error {
				return db.Registry().SetActive(args[0], false)
			})
		},
	}

	cmd.AddCommand(add, list, setWeight, activate, deactivate)
	return cmd
}

func newIndexCmd() *cobra.Command {
	var project, title, id string
	cmd := &cobra.Command{
		Use:   "index [text]",
		Short: "Index a note into a project",
		Long: `Index stores a note, embeds it through the configured provider, and
inserts it into the project's spatial index. Text comes from the argument
or stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) > 0 {
				text = args[0]
			} else {
				data, err := readStdin()
				if err != nil {
					return err
				}
				text = data
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("nothing to index")
			}
			return withDB(func(db *yggdrasil.DB) error {
				node := &storage.Node{
					ID:        storage.NodeID(id),
					ProjectID: project,
					Title:     title,
					Text:      text,
				}
				if err := db.IndexNode(cmd.Context(), node); err != nil {
					return err
				}
				printf("%s\n", node.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "default", "project to index into")
	cmd.Flags().StringVarP(&title, "title", "t", "", "note title")
	cmd.Flags().StringVar(&id, "id", "", "explicit node ID (default generated)")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var project string
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search across active projects (or one project with -p)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *yggdrasil.DB) error {
				if project != "" {
					results, err := db.SearchProject(cmd.Context(), project, args[0], topK)
					if err != nil {
						return err
					}
					for _, r := range results {
						printf("%.4f\t%s\t%s\n", r.Similarity, r.Node.ID, firstLine(r.Node))
					}
					return nil
				}
				results, err := db.Search(cmd.Context(), args[0], topK)
				if err != nil {
					return err
				}
				for _, r := range results {
					printf("%.4f\t%s\t%s\t%s\n", r.Score, r.ProjectID, r.Node.ID, firstLine(r.Node))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "search one project only")
	cmd.Flags().IntVarP(&topK, "top", "k", 10, "number of results")
	return cmd
}

func newSuggestCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "suggest <node-id>",
		Short: "Suggest typed links for a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *yggdrasil.DB) error {
				suggestions, err := db.SuggestLinks(cmd.Context(), storage.NodeID(args[0]), topK)
				if err != nil {
					return err
				}
				for _, s := range suggestions {
					printf("%.4f\t%s\t%s\t%s\n", s.Confidence, s.Type, s.TargetID, s.Rationale)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&topK, "top", "k", 5, "number of suggestions")
	return cmd
}

func newLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Manage typed links",
	}

	var project, relType string
	var confidence float64
	var force bool
	create := &cobra.Command{
		Use:   "create <source-id> <target-id>",
		Short: "Create a typed link between two nodes",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return withDB(func(db *yggdrasil.DB) error {
				result, err := db.CreateLink(linker.CreateParams{
					ProjectID:  project,
					SourceID:   storage.NodeID(args[0]),
					TargetID:   storage.NodeID(args[1]),
					Type:       storage.RelationType(relType),
					Confidence: confidence,
					Provenance: storage.Provenance{Method: "manual"},
					Force:      force,
				})
				if err != nil {
					return err
				}
				if result.Warning != nil {
					fmt.Fprintf(os.Stderr, "warning: %s\n", result.Warning)
				}
				if result.Link == nil {
					fmt.Fprintln(os.Stderr, "refused: rerun with --force to create anyway")
					return nil
				}
				printf("%s\n", result.Link.ID)
				return nil
			})
		},
	}
	create.Flags().StringVarP(&project, "project", "p", "default", "project the link belongs to")
	create.Flags().StringVarP(&relType, "type", "t", string(storage.RelationRelated), "relation type")
	create.Flags().Float64VarP(&confidence, "confidence", "c", 1.0, "link confidence (0-1)")
	create.Flags().BoolVar(&force, "force", false, "create even when the link closes a cycle")

	var deactivate bool
	update := &cobra.Command{
		Use:   "update <link-id>",
		Short: "Update a link's type, confidence, or active flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withDB(func(db *yggdrasil.DB) error {
				var p linker.UpdateParams
				if c.Flags().Changed("type") {
					t := storage.RelationType(relType)
					p.Type = &t
				}
				if c.Flags().Changed("confidence") {
					p.Confidence = &confidence
				}
				if deactivate {
					f := false
					p.Active = &f
				}
				link, err := db.UpdateLink(args[0], p)
				if err != nil {
					return err
				}
				printf("%s\t%s\t%.4f\tactive=%t\n", link.ID, link.Type, link.Confidence, link.Active)
				return nil
			})
		},
	}
	update.Flags().StringVarP(&relType, "type", "t", "", "new relation type")
	update.Flags().Float64VarP(&confidence, "confidence", "c", 0, "new confidence (0-1)")
	update.Flags().BoolVar(&deactivate, "deactivate", false, "mark the link inactive")

	cmd.AddCommand(create, update)
	return cmd
}

func newInteractionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interactions",
		Short: "Record, list, and purge the interaction log",
	}

	var action, nodeID string
	record := &cobra.Command{
		Use:   "record <text>",
		Short: "Record an interaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withDB(func(db *yggdrasil.DB) error {
				return db.RecordInteraction(c.Context(), &storage.Interaction{
					NodeID: storage.NodeID(nodeID),
					Action: storage.ActionType(action),
				}, args[0])
			})
		},
	}
	record.Flags().StringVarP(&action, "action", "a", string(storage.ActionView), "action type")
	record.Flags().StringVarP(&nodeID, "node", "n", "", "node the interaction touched")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent interactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withDB(func(db *yggdrasil.DB) error {
				recent, err := db.RecentInteractions(limit)
				if err != nil {
					return err
				}
				for _, in := range recent {
					printf("%s\t%s\t%s\n", in.At.Format(time.RFC3339), in.Action, in.NodeID)
				}
				return nil
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "l", 20, "maximum entries")

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete interactions older than a given age (0 purges all)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withDB(func(db *yggdrasil.DB) error {
				n, err := db.PurgeInteractions(olderThan)
				if err != nil {
					return err
				}
				printf("purged %d\n", n)
				return nil
			})
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 0, "age cutoff, e.g. 720h")

	cmd.AddCommand(record, list, purge)
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show engine counters",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withDB(func(db *yggdrasil.DB) error {
				stats, err := db.Stats()
				if err != nil {
					return err
				}
				printf("projects:        %d\n", stats.Projects)
				printf("interactions:    %d\n", stats.Interactions)
				printf("params version:  %d\n", stats.ParamsVersion)
				printf("params stale:    %t\n", stats.ParamsStale)
				printf("node cache:      %d hits / %d misses\n", stats.CacheHits, stats.CacheMisses)
				if len(stats.Degraded) > 0 {
					printf("degraded:        %s\n", strings.Join(stats.Degraded, ", "))
				}
				return nil
			})
		},
	}
}

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Recompute quantization params and re-key every project",
		Long: `Reindex recomputes the shared quantization parameters from every stored
embedding and rebuilds every project's spatial index under the new params.
Expensive; run it when stats reports stale params.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withDB(func(db *yggdrasil.DB) error {
				return db.ReindexProject(c.Context())
			})
		},
	}
}

func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func firstLine(n *storage.Node) string {
	s := n.Title
	if s == "" {
		s = n.Text
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:80] + "..."
	}
	return s
}
