package graph

import (
	"fmt"
	"strings"

	"github.com/wizzardx/davinci/internal/predicate"
)

// primitives is the set of built-in scalar type tags.
var primitives = map[string]bool{
	"string":    true,
	"int":       true,
	"integer":   true,
	"float":     true,
	"number":    true,
	"decimal":   true,
	"bool":      true,
	"boolean":   true,
	"timestamp": true,
	"date":      true,
	"duration":  true,
	"bytes":     true,
	"uuid":      true,
	"email":     true,
	"money":     true,
	"any":       true,
}

// collections maps generic collection names to their arity.
var collections = map[string]int{
	"list":     1,
	"set":      1,
	"optional": 1,
	"map":      2,
}

// Vocabulary recognises type tags: primitives, collections (list<T>, set<T>,
// map<K,V>, optional<T>, T[]), enums (enum(a,b)), refinements ({base | pred})
// and document-declared aliases.
type Vocabulary struct {
	aliases map[string]string
}

// NewVocabulary creates a Vocabulary with the given alias declarations.
func NewVocabulary(aliases map[string]string) *Vocabulary {
	cp := make(map[string]string, len(aliases))
	for k, v := range aliases {
		cp[k] = v
	}
	return &Vocabulary{aliases: cp}
}

// Check returns nil if tag is a recognised type.
func (v *Vocabulary) Check(tag string) error {
	return v.check(tag, map[string]bool{})
}

func (v *Vocabulary) check(tag string, resolving map[string]bool) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return fmt.Errorf("empty type tag")
	}

	switch {
	case strings.HasSuffix(tag, "[]"):
		return v.check(strings.TrimSuffix(tag, "[]"), resolving)

	case strings.HasPrefix(tag, "{"):
		return v.checkRefinement(tag, resolving)

	case strings.HasPrefix(tag, "enum("):
		if !strings.HasSuffix(tag, ")") {
			return fmt.Errorf("malformed enum %q", tag)
		}
		members := splitTopLevel(tag[len("enum(") : len(tag)-1])
		if len(members) == 0 {
			return fmt.Errorf("enum %q has no members", tag)
		}
		for _, m := range members {
			if strings.TrimSpace(m) == "" {
				return fmt.Errorf("enum %q has an empty member", tag)
			}
		}
		return nil

	case strings.Contains(tag, "<"):
		open := strings.Index(tag, "<")
		if !strings.HasSuffix(tag, ">") {
			return fmt.Errorf("malformed collection type %q", tag)
		}
		name := tag[:open]
		arity, ok := collections[name]
		if !ok {
			return fmt.Errorf("unknown collection type %q", name)
		}
		args := splitTopLevel(tag[open+1 : len(tag)-1])
		if len(args) != arity {
			return fmt.Errorf("%s expects %d type argument(s), got %d", name, arity, len(args))
		}
		for _, a := range args {
			if err := v.check(a, resolving); err != nil {
				return err
			}
		}
		return nil
	}

	if primitives[tag] {
		return nil
	}
	if def, ok := v.aliases[tag]; ok {
		if resolving[tag] {
			return fmt.Errorf("type alias %q refers to itself", tag)
		}
		resolving[tag] = true
		defer delete(resolving, tag)
		return v.check(def, resolving)
	}
	return fmt.Errorf("unknown type %q", tag)
}

// checkRefinement validates a {base | predicate} refinement type.
func (v *Vocabulary) checkRefinement(tag string, resolving map[string]bool) error {
	if !strings.HasSuffix(tag, "}") {
		return fmt.Errorf("malformed refinement type %q", tag)
	}
	body := tag[1 : len(tag)-1]
	bar := strings.Index(body, "|")
	if bar < 0 {
		return fmt.Errorf("refinement type %q has no predicate", tag)
	}
	base, pred := strings.TrimSpace(body[:bar]), strings.TrimSpace(body[bar+1:])
	if err := v.check(base, resolving); err != nil {
		return err
	}
	if pred == "" {
		return fmt.Errorf("refinement type %q has an empty predicate", tag)
	}
	if err := predicate.CheckSyntax(pred); err != nil {
		return fmt.Errorf("refinement predicate %q: %w", pred, err)
	}
	return nil
}

// splitTopLevel splits s on commas that are not nested inside <>, () or a
// refinement's braces. Comparison operators inside braces are ignored.
func splitTopLevel(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var parts []string
	depth, braces, start := 0, 0, 0
	for i, r := range s {
		switch r {
		case '{':
			braces++
		case '}':
			braces--
		case '<', '(':
			if braces == 0 {
				depth++
			}
		case '>', ')':
			if braces == 0 {
				depth--
			}
		case ',':
			if depth == 0 && braces == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}
