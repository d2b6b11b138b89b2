// Package filter classifies JVM internal class names (slash separated, as
// stored in a bindeps index) into JDK, framework and application groups.
package filter

import (
	"cmp"
	"slices"
	"strings"
	"sync"
)

// ClassCategory represents the category of a class.
type ClassCategory int

const (
	// CategoryUnknown indicates the class category is unknown.
	CategoryUnknown ClassCategory = iota
	// CategoryPrimitive indicates primitive array descriptors such as "[I".
	CategoryPrimitive
	// CategoryJDK indicates JDK classes and arrays of them.
	CategoryJDK
	// CategoryFramework indicates well-known library and framework classes.
	CategoryFramework
	// CategoryApplication indicates everything not matched by another rule.
	CategoryApplication
	// CategoryBusiness indicates classes under a configured business prefix.
	CategoryBusiness
)

// String returns the string representation of the category.
func (c ClassCategory) String() string {
	switch c {
	case CategoryPrimitive:
		return "primitive"
	case CategoryJDK:
		return "jdk"
	case CategoryFramework:
		return "framework"
	case CategoryApplication:
		return "application"
	case CategoryBusiness:
		return "business"
	default:
		return "unknown"
	}
}

// Categories lists every category in display order.
var Categories = []ClassCategory{
	CategoryPrimitive,
	CategoryJDK,
	CategoryFramework,
	CategoryApplication,
	CategoryBusiness,
	CategoryUnknown,
}

// maxCached bounds the classification cache.
const maxCached = 1 << 16

type rule struct {
	prefix   string
	category ClassCategory
}

var defaultRules = []rule{
	{"java/", CategoryJDK},
	{"javax/", CategoryJDK},
	{"jdk/", CategoryJDK},
	{"sun/", CategoryJDK},
	{"com/sun/", CategoryJDK},
	{"org/w3c/dom/", CategoryJDK},
	{"org/xml/sax/", CategoryJDK},
	{"org/ietf/jgss/", CategoryJDK},

	{"org/springframework/", CategoryFramework},
	{"io/netty/", CategoryFramework},
	{"com/google/common/", CategoryFramework},
	{"com/google/protobuf/", CategoryFramework},
	{"org/slf4j/", CategoryFramework},
	{"ch/qos/logback/", CategoryFramework},
	{"org/apache/logging/log4j/", CategoryFramework},
	{"org/apache/commons/", CategoryFramework},
	{"com/fasterxml/jackson/", CategoryFramework},
	{"net/bytebuddy/", CategoryFramework},
	{"org/objectweb/asm/", CategoryFramework},
	{"kotlin/", CategoryFramework},
	{"scala/", CategoryFramework},
	{"io/opentelemetry/", CategoryFramework},
	{"org/junit/", CategoryFramework},
}

// ClassFilter classifies internal class names by prefix rules. The longest
// matching prefix decides, except that business prefixes always win.
// It is safe for concurrent use.
type ClassFilter struct {
	mu       sync.RWMutex
	rules    []rule
	business []string
	cache    map[string]ClassCategory
}

// NewClassFilter creates a ClassFilter with the built-in JDK and framework
// rules.
func NewClassFilter() *ClassFilter {
	f := &ClassFilter{cache: make(map[string]ClassCategory)}
	for _, r := range defaultRules {
		f.addRule(r)
	}
	return f
}

// normalizePrefix converts a dotted package to the internal slash form.
func normalizePrefix(prefix string) string {
	return strings.ReplaceAll(strings.TrimSpace(prefix), ".", "/")
}

// addRule inserts r keeping rules ordered longest prefix first. Callers
// hold f.mu or own f exclusively.
func (f *ClassFilter) addRule(r rule) {
	i, _ := slices.BinarySearchFunc(f.rules, r, func(a, b rule) int {
		return cmp.Compare(len(b.prefix), len(a.prefix))
	})
	f.rules = slices.Insert(f.rules, i, r)
	clear(f.cache)
}

// AddPrefix classifies every class under prefix as category. Dotted
// prefixes are accepted. Business prefixes should use AddBusinessPrefix.
func (f *ClassFilter) AddPrefix(prefix string, category ClassCategory) {
	prefix = normalizePrefix(prefix)
	if prefix == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addRule(rule{prefix: prefix, category: category})
}

// AddBusinessPrefix marks classes under prefix as business classes.
// Dotted prefixes are accepted and duplicates are ignored.
func (f *ClassFilter) AddBusinessPrefix(prefix string) {
	prefix = normalizePrefix(prefix)
	if prefix == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if slices.Contains(f.business, prefix) {
		return
	}
	f.business = append(f.business, prefix)
	clear(f.cache)
}

// BusinessPrefixes returns the configured business prefixes.
func (f *ClassFilter) BusinessPrefixes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.business)
}

// Classify returns the category of an internal class name or array
// descriptor. Object arrays classify like their element type.
func (f *ClassFilter) Classify(className string) ClassCategory {
	if className == "" {
		return CategoryUnknown
	}

	f.mu.RLock()
	cat, ok := f.cache[className]
	f.mu.RUnlock()
	if ok {
		return cat
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cat = f.classify(className)
	if len(f.cache) < maxCached {
		f.cache[className] = cat
	}
	return cat
}

func (f *ClassFilter) classify(name string) ClassCategory {
	if strings.HasPrefix(name, "[") {
		elem := strings.TrimLeft(name, "[")
		if len(elem) == 1 && strings.Contains("BCDFIJSZ", elem) {
			return CategoryPrimitive
		}
		if len(elem) < 3 || elem[0] != 'L' || elem[len(elem)-1] != ';' {
			return CategoryUnknown
		}
		name = elem[1 : len(elem)-1]
	}

	for _, p := range f.business {
		if strings.HasPrefix(name, p) {
			return CategoryBusiness
		}
	}
	for _, r := range f.rules {
		if strings.HasPrefix(name, r.prefix) {
			return r.category
		}
	}
	return CategoryApplication
}

// IsJDK reports whether className is a JDK class.
func (f *ClassFilter) IsJDK(className string) bool {
	return f.Classify(className) == CategoryJDK
}

// DefaultFilter carries only the built-in rules.
var DefaultFilter = NewClassFilter()

// Classify classifies className with DefaultFilter.
func Classify(className string) ClassCategory {
	return DefaultFilter.Classify(className)
}

// IsJDK reports whether DefaultFilter classifies className as JDK.
func IsJDK(className string) bool {
	return DefaultFilter.IsJDK(className)
}
