// Package link models the two-level bindings between internal catalog
// entities and their counterparts in an external marketplace.
//
// A product-level link binds a product to an external product id. Variant
// links hang off a product link of the same account and bind a variant to an
// external variant (offer, SKU) id. Status moves PENDING -> LINKED|FAILED and
// FAILED -> PENDING; a LINKED binding only goes back to PENDING through an
// explicit unlink.
package link
