package schema

import "regexp"

var unsafeIdentChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Ident is a table or column name that has passed sanitization. It is the only
// string type the DDL and query builders interpolate into SQL text; raw
// strings must go through Sanitize first, values always bind as parameters.
type Ident string

// Sanitize reduces a name to the characters allowed in a SQL identifier.
// Everything outside [A-Za-z0-9_] is removed, not escaped, so no metacharacter
// can survive into generated SQL.
func Sanitize(name string) Ident {
	return Ident(unsafeIdentChars.ReplaceAllString(name, ""))
}

// IsClean reports whether name is already a legal identifier (sanitizing it
// would change nothing and it is non-empty).
func IsClean(name string) bool {
	return name != "" && string(Sanitize(name)) == name
}

func (i Ident) String() string { return string(i) }

// Quoted returns the identifier in MySQL backtick quoting.
func (i Ident) Quoted() string { return "`" + string(i) + "`" }

// Empty reports whether nothing survived sanitization.
func (i Ident) Empty() bool { return i == "" }
