// Package catalog holds the internal product catalog as seen by channel sync:
// products, their variants, and EntityRef, the tagged reference used wherever
// something may belong to either a product or a variant.
package catalog
