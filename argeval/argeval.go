// Package argeval evaluates command line arguments against a table of option
// definitions owned by the host program.
//
// The host declares its options once, registers them with a Parser and calls Parse
// with the raw argument vector. Matched options write straight into host variables,
// invoke host handlers and bump occurrence counters. Parse reports through a Status
// whether the program should keep running, stop because help was shown, or stop
// because the arguments were malformed.
//
//	verbose := 0
//	port := 1883
//	opts := []argeval.Option{
//		{Short: "h", Long: "help", Help: "shows this screen"},
//		{Short: "p", Long: "port", Help: "broker port (default: {})", Arity: 1, Target: argeval.Int(&port)},
//		{Short: "v", Long: "verbose", Help: "more output", Occurrences: &verbose},
//	}
//	p := argeval.New()
//	if err := p.RegisterOptions(opts, &opts[0]); err != nil {
//		return err
//	}
//	status, err := p.Parse(os.Args[1:], os.Stderr)
//
// A Parser is not safe for concurrent use. Handlers run on the goroutine calling
// Parse and must not call Parse themselves.
package argeval

import (
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/multierr"
)

// Status is the outcome of Parse.
type Status int

const (
	// StatusContinue means every argument was accepted and the program should run.
	StatusContinue Status = iota
	// StatusHelp means help was written and the program should exit successfully.
	StatusHelp
	// StatusFailure means at least one diagnostic was written and the program should
	// exit with an error.
	StatusFailure
)

// String returns a short name for the status.
func (s Status) String() string {
	switch s {
	case StatusContinue:
		return "continue"
	case StatusHelp:
		return "help"
	case StatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Option is one row of the host's option table.
type Option struct {
	// Short is matched against tokens of the form -Short.
	Short string
	// Long is matched against tokens of the form --Long.
	Long string
	// Help describes the option. A {} in it is replaced in help output by the
	// current value of a scalar Target.
	Help string
	// Arity is the number of tokens following the option that it consumes.
	Arity int
	// Target receives the consumed values. Nil behaves like NoValue.
	Target Target
	// Occurrences, if set, is incremented every time the option is matched.
	Occurrences *int
}

// Name returns the form used to refer to the option in messages.
func (o *Option) Name() string {
	if o.Long != "" {
		return "--" + o.Long
	}
	return "-" + o.Short
}

func (o *Option) target() Target {
	if o.Target == nil {
		return noValue{}
	}
	return o.Target
}

// CallbackResult records one handler invocation made during Parse.
type CallbackResult struct {
	// Option is the matched token, empty for the extra argument handler.
	Option string
	Values []string
	Code   int
}

// Parser holds the registered table and settings used by Parse.
type Parser struct {
	options         []Option
	help            *Option
	extra           Handler
	intro           string
	helpWithoutArgs bool
	abortOnFailure  bool

	configErr error
	results   []CallbackResult
}

// New returns a Parser with nothing registered.
func New() *Parser {
	return &Parser{}
}

// EnableHelpWithoutArguments makes an empty argument vector behave as if the help
// option had been given.
func (p *Parser) EnableHelpWithoutArguments() {
	p.helpWithoutArgs = true
}

// SetIntroText sets the text written before the option list in help output.
func (p *Parser) SetIntroText(text string) {
	p.intro = text
}

// RegisterExtraArgumentHandler sets the handler called once for every token that
// is neither an option nor a value consumed by one.
func (p *Parser) RegisterExtraArgumentHandler(h Handler) {
	p.extra = h
}

// AbortOnCallbackFailure makes a non-zero handler code a parse failure. By default
// codes are only recorded and available through CallbackResults.
func (p *Parser) AbortOnCallbackFailure() {
	p.abortOnFailure = true
}

// CallbackResults returns the handler invocations of the last Parse in order.
func (p *Parser) CallbackResults() []CallbackResult {
	return p.results
}

// RegisterOptions validates opts and makes it the table used by Parse. The slice is
// kept, not copied. help must point into opts or be nil. A validation failure is
// returned and also remembered, so a later Parse fails instead of running with a
// corrupt table.
func (p *Parser) RegisterOptions(opts []Option, help *Option) error {
	p.options = opts
	p.help = help
	p.configErr = validate(opts, help)
	return p.configErr
}

func validate(opts []Option, help *Option) error {
	var errs error
	fail := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, &ConfigurationError{Reason: fmt.Sprintf(format, args...)})
	}

	for i := range opts {
		opt := &opts[i]
		if opt.Short == "" && opt.Long == "" {
			fail("entry %d has neither a short nor a long form", i)
			continue
		}
		kind := opt.target().Kind()
		switch {
		case opt.Arity < 0:
			fail("%s has negative arity %d", opt.Name(), opt.Arity)
		case kind == KindNone && opt.Arity != 0:
			fail("%s takes %d value(s) but has no target", opt.Name(), opt.Arity)
		case kind.scalar() && opt.Arity != 1:
			fail("%s stores a %s and must take exactly 1 value, not %d", opt.Name(), kind, opt.Arity)
		}
		if !opt.target().bound() {
			fail("%s has a nil %s target", opt.Name(), kind)
		}
	}

	shorts := lo.FilterMap(opts, func(o Option, _ int) (string, bool) { return o.Short, o.Short != "" })
	for _, dup := range lo.FindDuplicates(shorts) {
		fail("short form -%s is registered more than once", dup)
	}
	longs := lo.FilterMap(opts, func(o Option, _ int) (string, bool) { return o.Long, o.Long != "" })
	for _, dup := range lo.FindDuplicates(longs) {
		fail("long form --%s is registered more than once", dup)
	}

	if help != nil && !member(opts, help) {
		fail("help entry %s is not part of the table", help.Name())
	}
	return errs
}

func member(opts []Option, opt *Option) bool {
	for i := range opts {
		if &opts[i] == opt {
			return true
		}
	}
	return false
}
