package model

import "time"

// Service represents a bookable dental procedure.  The engine treats
// it as an opaque price carrier: checkout amounts are always read from
// here, never from client input.
//
// Fields:
//  ID         – primary key identifier.
//  Name       – display name of the procedure.
//  PriceCents – booking fee in centavos.
//  CreatedAt  – timestamp of creation.
//  UpdatedAt  – timestamp of last update.
type Service struct {
    ID         uint64    // services.id
    Name       string    // services.name
    PriceCents uint32    // services.price_cents
    CreatedAt  time.Time // services.created_at
    UpdatedAt  time.Time // services.updated_at
}
