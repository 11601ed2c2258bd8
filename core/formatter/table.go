package formatter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// TableFormatter formats output as aligned text tables.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// Description returns the formatter description.
func (f *TableFormatter) Description() string {
	return "Aligned text table output"
}

// FormatSnapshot prints the attributes as key-value rows followed by the
// children and the change log.
func (f *TableFormatter) FormatSnapshot(w io.Writer, snap Snapshot, opts FormatOptions) error {
	snap = opts.filter(snap)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	f.writeSnapshot(tw, "", snap, opts)

	if len(snap.Changes) > 0 {
		fmt.Fprintln(tw)
		if !opts.NoHeader {
			fmt.Fprintln(tw, "EVENT\tVALUE")
		}
		for _, c := range snap.Changes {
			val := ""
			if c.Key != "" {
				val = f.formatValue(c.Value, opts.MaxWidth)
			}
			fmt.Fprintf(tw, "%s\t%s\n", c.Event, val)
		}
	}

	return tw.Flush()
}

func (f *TableFormatter) writeSnapshot(tw io.Writer, prefix string, snap Snapshot, opts FormatOptions) {
	fmt.Fprintf(tw, "%s%s (%s)\n", prefix, snap.Type, snap.CID)

	if !opts.NoHeader && prefix == "" {
		fmt.Fprintln(tw, "PROPERTY\tVALUE")
	}
	for _, key := range sortedKeys(snap.Attributes) {
		fmt.Fprintf(tw, "%s%s\t%s\n", prefix, key, f.formatValue(snap.Attributes[key], opts.MaxWidth))
	}

	for _, name := range sortedKeys(snap.Children) {
		fmt.Fprintf(tw, "%s%s:\n", prefix, name)
		f.writeSnapshot(tw, prefix+"  ", snap.Children[name], opts)
	}

	for _, name := range sortedKeys(snap.Collections) {
		items := snap.Collections[name]
		fmt.Fprintf(tw, "%s%s: %d item(s)\n", prefix, name, len(items))
		for _, item := range items {
			f.writeSnapshot(tw, prefix+"  ", item, opts)
		}
	}
}

// FormatTypes prints one row per property.
func (f *TableFormatter) FormatTypes(w io.Writer, types []TypeInfo, opts FormatOptions) error {
	if len(types) == 0 {
		fmt.Fprintln(w, "No types found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !opts.NoHeader {
		fmt.Fprintln(tw, "TYPE\tPROPERTY\tDATA TYPE\tFLAGS\tDEFAULT")
	}

	for _, t := range types {
		for _, p := range t.Properties {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Name, p.Name, orDash(p.Type), flags(p), f.formatValue(p.Default, opts.MaxWidth))
		}
		for _, child := range t.Children {
			fmt.Fprintf(tw, "%s\t%s\tchild\t-\t-\n", t.Name, child)
		}
	}

	return tw.Flush()
}

// FormatError formats an error message.
func (f *TableFormatter) FormatError(w io.Writer, err error) error {
	fmt.Fprintf(w, "Error: %s\n", err.Error())
	return nil
}

func flags(p PropertyInfo) string {
	var out []string
	if p.Required {
		out = append(out, "required")
	}
	if p.Session {
		out = append(out, "session")
	}
	if p.SetOnce {
		out = append(out, "set_once")
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatValue formats a value for display.
func (f *TableFormatter) formatValue(val any, maxWidth int) string {
	if val == nil {
		return "-"
	}

	var str string
	switch v := val.(type) {
	case string:
		str = v
	case bool:
		if v {
			str = "yes"
		} else {
			str = "no"
		}
	case time.Time:
		str = v.UTC().Format(time.RFC3339)
	case float64:
		if v == float64(int64(v)) {
			str = fmt.Sprintf("%d", int64(v))
		} else {
			str = fmt.Sprintf("%.2f", v)
		}
	case fmt.Stringer:
		str = v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			str = fmt.Sprint(v)
		} else {
			str = string(b)
		}
	}

	if maxWidth > 3 && len(str) > maxWidth {
		str = str[:maxWidth-3] + "..."
	}

	return str
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	if err := Register(NewTableFormatter()); err != nil {
		fmt.Printf("failed to register table formatter: %v\n", err)
	}
}
