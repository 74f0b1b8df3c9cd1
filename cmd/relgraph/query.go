package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/contrib/mixin"
	"github.com/syssam/relgraph/dao"
	"github.com/syssam/relgraph/entity"
	"github.com/syssam/relgraph/graph"
	"github.com/syssam/relgraph/order"
	"github.com/syssam/relgraph/ranges"
	"github.com/syssam/relgraph/schema"
)

func (a *app) typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "Print the entity types of the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.loadSchema()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), typesView(s))
		},
	}
}

type memberView struct {
	Name     string `json:"name"`
	Target   string `json:"target"`
	Kind     string `json:"kind"`
	Bounds   string `json:"bounds"`
	Partner  string `json:"partner,omitempty"`
	Embedded bool   `json:"embedded,omitempty"`
}

type typeView struct {
	Name       string            `json:"name"`
	Abstract   bool              `json:"abstract,omitempty"`
	Extends    []string          `json:"extends,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Members    []memberView      `json:"members,omitempty"`
}

func typesView(s *schema.Schema) []typeView {
	var out []typeView
	for _, t := range s.Types() {
		v := typeView{Name: t.Name, Abstract: t.Abstract, Attributes: map[string]string{}}
		for _, st := range t.Supertypes {
			v.Extends = append(v.Extends, st.Name)
		}
		for _, at := range t.AllAttributes() {
			typ := at.Type.String()
			if at.Optional {
				typ += "?"
			}
			if at.IsDerived() {
				typ += " (derived)"
			}
			v.Attributes[at.Name] = typ
		}
		for _, m := range t.AllMembers() {
			upper := "*"
			if !m.Unbounded() {
				upper = fmt.Sprint(m.Upper)
			}
			mv := memberView{
				Name:     m.Name,
				Target:   m.Target.Name,
				Kind:     m.Kind.String(),
				Bounds:   fmt.Sprintf("%d..%s", m.Lower, upper),
				Embedded: m.Embedded,
			}
			if p := m.Partner(); p != nil {
				mv.Partner = p.String()
			}
			v.Members = append(v.Members, mv)
		}
		out = append(out, v)
	}
	return out
}

func (a *app) createCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create -f payload.json",
		Short: "Create an instance tree from a JSON payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			p := &entity.Payload{}
			if err := json.Unmarshal(data, p); err != nil {
				return fmt.Errorf("decode payload: %w", err)
			}
			return a.run(cmd.Context(), func(ctx context.Context, c *dao.Client) error {
				mixin.Stamp(c.Schema(), p, time.Now())
				i, err := c.Create(ctx, p)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), i)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "payload file, - for stdin")
	return cmd
}

func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(file)
}

func (a *app) updateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "update <id> -f attrs.json",
		Short: "Change the attributes of an instance",
		Long: `Update merges a JSON object of attribute values into an instance.
A null value clears an optional attribute.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			var attrs map[string]any
			if err := json.Unmarshal(data, &attrs); err != nil {
				return fmt.Errorf("decode attributes: %w", err)
			}
			return a.run(cmd.Context(), func(ctx context.Context, c *dao.Client) error {
				cur, err := c.Get(ctx, args[0])
				if err != nil {
					return err
				}
				i, err := c.Update(ctx, cur.ID, mixin.Touch(cur.Type, attrs, time.Now()))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), i)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "attributes file, - for stdin")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	var record bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func(ctx context.Context, c *dao.Client) error {
				if record {
					r, err := c.Read(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), r)
				}
				i, err := c.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), i)
			})
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "include derived attributes and embedded members")
	return cmd
}

type linkView struct {
	Member string `json:"member"`
	Target string `json:"target"`
}

type nodeView struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Attrs          map[string]any `json:"attrs,omitempty"`
	Expanded       bool           `json:"expanded,omitempty"`
	Containments   []linkView     `json:"containments,omitempty"`
	References     []linkView     `json:"references,omitempty"`
	BackReferences []linkView     `json:"back_references,omitempty"`
}

type graphView struct {
	Roots []string   `json:"roots"`
	Nodes []nodeView `json:"nodes"`
}

func viewGraph(g *graph.Graph) graphView {
	links := func(ls []graph.Link) []linkView {
		out := make([]linkView, 0, len(ls))
		for _, l := range ls {
			out = append(out, linkView{Member: l.Member.Name, Target: g.Target(l).ID})
		}
		return out
	}
	var v graphView
	for _, r := range g.Roots() {
		v.Roots = append(v.Roots, r.ID)
	}
	nodes := g.Nodes()
	for _, id := range entity.SortedKeys(nodes) {
		n := nodes[id]
		v.Nodes = append(v.Nodes, nodeView{
			ID:             n.ID,
			Type:           n.Type.Name,
			Attrs:          n.Attrs,
			Expanded:       n.Expanded,
			Containments:   links(n.Containments),
			References:     links(n.References),
			BackReferences: links(n.BackReferences),
		})
	}
	return v
}

func (a *app) graphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <type> <id>...",
		Short: "Print the instance graph reachable from the given roots",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func(ctx context.Context, c *dao.Client) error {
				g, err := c.Graph(ctx, args[0], args[1:]...)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), viewGraph(g))
			})
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an instance and everything its delete cascades to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func(ctx context.Context, c *dao.Client) error {
				if dryRun {
					plan, err := c.DeletePlan(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), plan.Order())
				}
				deleted, err := c.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), deleted)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the delete closure without deleting")
	return cmd
}

func (a *app) rangeCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "range <type> <member>",
		Short: "Print the legal targets of a relation member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func(ctx context.Context, c *dao.Client) error {
				var o ranges.Owner
				if owner != "" {
					o = ranges.Persisted{ID: owner}
				}
				out, err := c.RangeOf(ctx, args[0], args[1], o)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "id of the owning instance")
	return cmd
}

type rowView struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

type pageView struct {
	Rows    []rowView `json:"rows"`
	HasMore bool      `json:"has_more"`
}

func viewPage(p order.Page) pageView {
	v := pageView{Rows: make([]rowView, 0, len(p.Rows)), HasMore: p.HasMore}
	for _, r := range p.Rows {
		v.Rows = append(v.Rows, rowView{ID: r.ID, Values: r.Values})
	}
	return v
}

func (a *app) listCmd() *cobra.Command {
	var (
		keys    []string
		after   string
		limit   int
		reverse bool
	)
	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List the instances of a type in the requested order",
		Long: `List prints a page of instances of a type. Keys are attribute names,
prefixed with - for a descending key. --after continues after the
instance with the given id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var spec order.Spec
			for _, k := range keys {
				key, err := order.ParseKey(k)
				if err != nil {
					return err
				}
				spec = append(spec, key)
			}
			return a.run(cmd.Context(), func(ctx context.Context, c *dao.Client) error {
				var cursor *order.Row
				if after != "" {
					all, err := c.List(ctx, args[0], spec, nil, 0, false)
					if err != nil {
						return err
					}
					for _, r := range all.Rows {
						if r.ID == after {
							cursor = &r
							break
						}
					}
					if cursor == nil {
						return relgraph.NewNotFoundErrorWithID(args[0], after)
					}
				}
				page, err := c.List(ctx, args[0], spec, cursor, limit, reverse)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), viewPage(page))
			})
		},
	}
	cmd.Flags().StringSliceVar(&keys, "order", nil, "ordering keys, e.g. -title,name")
	cmd.Flags().StringVar(&after, "after", "", "continue after the instance with this id")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of rows, 0 for all")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "walk the order backwards")
	return cmd
}
