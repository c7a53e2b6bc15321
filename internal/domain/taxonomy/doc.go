// Package taxonomy models the cached schema of an external marketplace:
// categories, attribute definitions with their validation rules, and the
// enumerated values of list-typed attributes.
package taxonomy
