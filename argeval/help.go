package argeval

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

const placeholder = "{}"

// WriteHelp writes the intro text followed by one line per registered option.
func (p *Parser) WriteHelp(w io.Writer) {
	p.writeHelp(w)
}

func (p *Parser) writeHelp(w io.Writer) {
	if p.intro != "" {
		fmt.Fprintln(w, p.intro)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i := range p.options {
		opt := &p.options[i]
		fmt.Fprintf(tw, "  %s\t%s\n", usage(opt), describe(opt))
	}
	//nolint:errcheck
	tw.Flush()
}

// usage renders the forms of an option followed by one placeholder per value,
// e.g. "-p, --port <value>".
func usage(opt *Option) string {
	var sb strings.Builder
	switch {
	case opt.Short != "" && opt.Long != "":
		sb.WriteString("-" + opt.Short + ", --" + opt.Long)
	case opt.Short != "":
		sb.WriteString("-" + opt.Short)
	default:
		sb.WriteString("    --" + opt.Long)
	}
	sb.WriteString(strings.Repeat(" <value>", opt.Arity))
	return sb.String()
}

func describe(opt *Option) string {
	target := opt.target()
	if !target.bound() {
		return opt.Help
	}
	value, ok := target.current()
	if !ok {
		return opt.Help
	}
	return strings.ReplaceAll(opt.Help, placeholder, value)
}
