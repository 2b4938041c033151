package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/arthur-debert/charsheet/charsheet"
	"github.com/arthur-debert/charsheet/charsheet/dom"
	"github.com/arthur-debert/charsheet/charsheet/record"
	"github.com/arthur-debert/charsheet/charsheet/rules"
	"github.com/arthur-debert/charsheet/charsheet/section"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (cli *CLI) addShowCommand() {
	cli.rootCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the character with its derived values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.withSheet("show character", func(sheet *charsheet.Sheet) error {
				if cli.format() != "table" {
					return cli.outputResult(map[string]any{
						"record":   sheet.Store().Snapshot(),
						"computed": sheet.Computed(),
					})
				}
				return cli.showTable(sheet)
			})
		},
	})
}

func (cli *CLI) showTable(sheet *charsheet.Sheet) error {
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)

	for _, key := range []string{"name", "species", "career", "careerLevel", "status"} {
		fmt.Fprintf(w, "%s\t%s\n", key, record.Text(sheet.Get(key)))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "CHAR\tINITIAL\tADVANCES\tCURRENT")
	for _, c := range sheet.Rules().Characteristics {
		base := record.Join("characteristics", c.Key)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Label,
			number(sheet.Get(record.Join(base, "initial"))),
			number(sheet.Get(record.Join(base, "advances"))),
			number(sheet.Get("_computed."+rules.CurrentKey(c.Key))))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "SKILL\tCHAR\tADVANCES\tTOTAL")
	for _, s := range sheet.Rules().BasicSkills {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, s.Characteristic,
			number(sheet.Get(record.Join("skills", s.Name))),
			number(sheet.Get("_computed."+rules.SkillTotalKey(s.Name))))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "experience\t%s\n", number(sheet.Get("_computed.totalExperience")))
	fmt.Fprintf(w, "encumbrance\t%s\n", number(sheet.Get("_computed.totalEncumbrance")))
	for _, name := range sheet.Sections() {
		ctrl, _ := sheet.Section(name)
		fmt.Fprintf(w, "%s\t%d\n", name, len(ctrl.Entries()))
	}
	return w.Flush()
}

func (cli *CLI) addGetCommand() {
	cli.rootCmd.AddCommand(&cobra.Command{
		Use:   "get <path>",
		Short: "Print the value at a key path (record or _computed.<key>)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.withSheet("get value", func(sheet *charsheet.Sheet) error {
				v := sheet.Get(args[0])
				switch v.(type) {
				case record.Map, []any:
					return cli.outputResult(v)
				case nil:
					return NewValidationError("get value", "path", args[0],
						"Run 'charsheet show -f json' to see the available paths")
				default:
					fmt.Fprintln(cli.out, record.Text(v))
					return nil
				}
			})
		},
	})
}

func (cli *CLI) addSetCommand() {
	var asNumber, asJSON bool
	cmd := &cobra.Command{
		Use:   "set <path> <value>",
		Short: "Write a value at a key path",
		Long: `Write a value at a key path. The value is stored as a number when the
current value is a number or --number is given, as decoded JSON with --json,
and as text otherwise.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, text := args[0], args[1]
			return cli.withSheet("set value", func(sheet *charsheet.Sheet) error {
				value, err := parseValue(text, sheet.Get(path), asNumber, asJSON)
				if err != nil {
					return NewValidationError("set value", "value", text, err.Error())
				}
				return sheet.Set(path, value)
			})
		},
	}
	cmd.Flags().BoolVar(&asNumber, "number", false, "Store the value as a number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Decode the value as JSON")
	cli.rootCmd.AddCommand(cmd)
}

func parseValue(text string, current any, asNumber, asJSON bool) (any, error) {
	switch {
	case asJSON:
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return nil, fmt.Errorf("value is not JSON: %w", err)
		}
		return v, nil
	case asNumber:
		return cast.ToFloat64E(strings.TrimSpace(text))
	}
	if _, ok := current.(float64); ok {
		return cast.ToFloat64E(strings.TrimSpace(text))
	}
	return text, nil
}

func (cli *CLI) addSectionCommand() {
	sectionCmd := &cobra.Command{
		Use:   "section",
		Short: "List and edit repeatable sections (weapons, talents, ...)",
	}

	sectionCmd.AddCommand(&cobra.Command{
		Use:   "list [section]",
		Short: "List sections, or the entries of one section",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.withSheet("list section", func(sheet *charsheet.Sheet) error {
				if len(args) == 0 {
					w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "SECTION\tENTRIES")
					for _, name := range sheet.Sections() {
						ctrl, _ := sheet.Section(name)
						fmt.Fprintf(w, "%s\t%d\n", name, len(ctrl.Entries()))
					}
					return w.Flush()
				}
				ctrl, err := sheet.Section(args[0])
				if err != nil {
					return err
				}
				if cli.format() != "table" {
					return cli.outputResult(ctrl.Entries())
				}
				return cli.sectionTable(sheet, ctrl)
			})
		},
	})

	sectionCmd.AddCommand(&cobra.Command{
		Use:   "add <section> [field=value...]",
		Short: "Append an entry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			return cli.withSheet("add entry", func(sheet *charsheet.Sheet) error {
				return editSection(sheet, args[0], func(ctrl *section.Controller, _ rowSource) error {
					ctrl.AddEntry(values)
					return nil
				})
			})
		},
	})

	sectionCmd.AddCommand(&cobra.Command{
		Use:   "remove <section> <index>",
		Short: "Remove the entry at index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return NewValidationError("remove entry", "index", args[1])
			}
			return cli.withSheet("remove entry", func(sheet *charsheet.Sheet) error {
				return editSection(sheet, args[0], func(_ *section.Controller, rows rowSource) error {
					row, err := rows.RowAt(index)
					if err != nil {
						return NewValidationError("remove entry", "index", args[1],
							fmt.Sprintf("Run 'charsheet section list %s' to see the entries", args[0]))
					}
					return row.Remove()
				})
			})
		},
	})

	sectionCmd.AddCommand(&cobra.Command{
		Use:   "set <section> <index> field=value...",
		Short: "Change fields of the entry at index",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return NewValidationError("edit entry", "index", args[1])
			}
			values, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}
			return cli.withSheet("edit entry", func(sheet *charsheet.Sheet) error {
				return editSection(sheet, args[0], func(ctrl *section.Controller, rows rowSource) error {
					row, err := rows.RowAt(index)
					if err != nil {
						return NewValidationError("edit entry", "index", args[1])
					}
					for field, v := range values {
						if _, ok := ctrl.Spec().Field(field); !ok {
							return NewValidationError("edit entry", "field", field)
						}
						if err := row.Input(field, record.Text(v)); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	})

	cli.rootCmd.AddCommand(sectionCmd)
}

// rowSource is the part of a section container the edit commands use.
type rowSource interface {
	RowAt(i int) (*dom.Row, error)
}

// editSection drives a section through edit mode: the edit runs against the
// rendered rows and leaving edit mode commits them.
func editSection(sheet *charsheet.Sheet, name string, edit func(*section.Controller, rowSource) error) error {
	ctrl, err := sheet.Section(name)
	if err != nil {
		return err
	}
	if err := ctrl.SetMode(section.Edit); err != nil {
		return err
	}
	if err := edit(ctrl, sheet.Document().Container(name)); err != nil {
		ctrl.Render(section.View)
		return err
	}
	return ctrl.SetMode(section.View)
}

func (cli *CLI) sectionTable(sheet *charsheet.Sheet, ctrl *section.Controller) error {
	spec := ctrl.Spec()
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)

	header := []string{"#"}
	for _, f := range spec.Fields {
		header = append(header, strings.ToUpper(f.Name))
	}
	if spec.Derived != "" {
		header = append(header, strings.ToUpper(spec.DerivedField))
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	derived := record.List(sheet.Get("_computed." + spec.Derived))
	for i, entry := range ctrl.Entries() {
		cells := []string{strconv.Itoa(i)}
		for _, f := range spec.Fields {
			cells = append(cells, f.Format(entry[f.Name]))
		}
		if spec.Derived != "" && i < len(derived) {
			cells = append(cells, number(derived[i][spec.DerivedField]))
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return w.Flush()
}

func parseAssignments(args []string) (record.Map, error) {
	values := make(record.Map, len(args))
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, NewValidationError("parse fields", "assignment", arg, "Use field=value, e.g. name=Sword enc=1")
		}
		values[field] = value
	}
	return values, nil
}

func (cli *CLI) addExportCommand() {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the character as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.withSheet("export character", func(sheet *charsheet.Sheet) error {
				text, err := sheet.Export()
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					_, err := fmt.Fprintln(cli.out, text)
					return err
				}
				return os.WriteFile(output, []byte(text+"\n"), 0644)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) addImportCommand() {
	cli.rootCmd.AddCommand(&cobra.Command{
		Use:   "import <file|->",
		Short: "Replace the character with JSON from a file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return WrapError("import character", err)
			}
			return cli.withSheet("import character", func(sheet *charsheet.Sheet) error {
				return sheet.Import(string(data))
			})
		},
	})
}

func (cli *CLI) addResetCommand() {
	cli.rootCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Replace the character with a blank one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.withSheet("reset character", func(sheet *charsheet.Sheet) error {
				return sheet.Reset()
			})
		},
	})
}

func (cli *CLI) format() string {
	return strings.ToLower(cli.viperInst.GetString("format"))
}

// outputResult formats and outputs the result based on the configured format
func (cli *CLI) outputResult(result any) error {
	switch cli.format() {
	case "yaml":
		encoder := yaml.NewEncoder(cli.out)
		encoder.SetIndent(2)
		if err := encoder.Encode(result); err != nil {
			return err
		}
		return encoder.Close()
	default:
		encoder := json.NewEncoder(cli.out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}
}

func number(v any) string {
	return record.Text(record.Number(v))
}
