// Package attribute holds the internal attribute definition registry and the
// values assigned to products and variants, including values a variant
// inherited from its product.
package attribute
