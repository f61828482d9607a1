// Package translate rewrites foreign errors (persistence drivers, JWT
// verification, request decoding, the filesystem) into the apperr taxonomy.
//
// Every Translator is a pass-through for errors it does not recognise, and for
// errors that are already *apperr.Error. Translators can therefore be chained
// in any order; ordering only decides which translator claims an error first.
package translate

import "github.com/tbourn/go-clinic-api/internal/apperr"

// Translator maps a foreign error into the taxonomy, or returns it unchanged.
type Translator interface {
	Translate(err error) error
}

// Func adapts a plain function to the Translator interface.
type Func func(error) error

// Translate calls f(err).
func (f Func) Translate(err error) error { return f(err) }

// Chain applies translators in order. A nil or empty chain is the identity.
type Chain []Translator

// Translate runs err through every translator in the chain.
func (ch Chain) Translate(err error) error {
	for _, t := range ch {
		if t == nil {
			continue
		}
		err = t.Translate(err)
	}
	return err
}

// Default returns the standard translator chain used by the HTTP layer.
func Default(debug bool) Chain {
	return Chain{
		Persistence{Debug: debug},
		Token{},
		Request{},
		Filesystem{},
	}
}

// claimed reports whether err needs no translation.
func claimed(err error) bool {
	if err == nil {
		return true
	}
	_, ok := apperr.As(err)
	return ok
}
