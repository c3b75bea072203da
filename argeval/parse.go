package argeval

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/multierr"
)

// Parse evaluates args, which must not include the program name, against the
// registered table. Diagnostics and help are written to w. The returned error
// combines every diagnostic that was raised; it is nil when nothing went wrong.
//
// Occurrence counters of the table are reset to zero before scanning so each call
// reflects only its own arguments. A counter is incremented as soon as its option
// is matched, before the option's values are checked.
func (p *Parser) Parse(args []string, w io.Writer) (Status, error) {
	p.results = nil

	var errs error
	report := func(err error) {
		errs = multierr.Append(errs, err)
		fmt.Fprintln(w, err)
	}

	if p.configErr != nil {
		for _, err := range multierr.Errors(p.configErr) {
			report(err)
		}
		return StatusFailure, errs
	}

	for i := range p.options {
		if counter := p.options[i].Occurrences; counter != nil {
			*counter = 0
		}
	}

	if len(args) == 0 && p.helpWithoutArgs && p.help != nil {
		p.writeHelp(w)
		return StatusHelp, nil
	}

	optionsDone := false
	for i := 0; i < len(args); i++ {
		token := args[i]
		if optionsDone || !looksLikeOption(token) {
			p.extraArgument(token, report)
			continue
		}
		if token == "--" {
			optionsDone = true
			continue
		}

		opt := p.match(token)
		if opt == nil {
			report(&UnrecognizedOptionError{Token: token})
			continue
		}
		if opt.Occurrences != nil {
			*opt.Occurrences++
		}
		if opt == p.help {
			p.writeHelp(w)
			return StatusHelp, errs
		}

		remaining := len(args) - i - 1
		if remaining < opt.Arity {
			report(&MissingValueError{Option: token, Want: opt.Arity, Got: remaining})
			break
		}
		values := args[i+1 : i+1+opt.Arity]
		i += opt.Arity
		p.dispatch(token, opt, values, report)
	}

	if errs != nil {
		return StatusFailure, errs
	}
	return StatusContinue, nil
}

func looksLikeOption(token string) bool {
	return len(token) > 1 && token[0] == '-'
}

// match returns the first table entry whose form equals the token.
func (p *Parser) match(token string) *Option {
	if name, ok := strings.CutPrefix(token, "--"); ok {
		for i := range p.options {
			if p.options[i].Long != "" && p.options[i].Long == name {
				return &p.options[i]
			}
		}
		return nil
	}
	name := token[1:]
	for i := range p.options {
		if p.options[i].Short != "" && p.options[i].Short == name {
			return &p.options[i]
		}
	}
	return nil
}

func (p *Parser) dispatch(token string, opt *Option, values []string, report func(error)) {
	target := opt.target()
	code, err := target.assign(values)
	if err != nil {
		report(&TypeMismatchError{Option: token, Token: values[0], Kind: target.Kind(), Err: err})
		return
	}
	if target.Kind() == KindCallback {
		p.record(token, values, code, report)
	}
}

func (p *Parser) extraArgument(token string, report func(error)) {
	if p.extra == nil {
		report(&UnexpectedArgumentError{Token: token})
		return
	}
	values := []string{token}
	p.record("", values, p.extra(values), report)
}

func (p *Parser) record(option string, values []string, code int, report func(error)) {
	p.results = append(p.results, CallbackResult{
		Option: option,
		Values: append([]string(nil), values...),
		Code:   code,
	})
	if code != 0 && p.abortOnFailure {
		report(&CallbackFailureError{Option: option, Code: code})
	}
}
