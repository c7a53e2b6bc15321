// Package models contains GORM persistence models for the sync tables.
// Models carry all gorm tags and convert to and from domain entities with
// ToDomain/FromDomain so the domain packages stay free of ORM concerns.
package models
