/*
Package domain contains the entities and rules shared by the edge router and
the configuration endpoints.

Everything that must agree between the three request paths lives here:

Lookup keys:
The backing key-value store forbids periods in keys, so a domain name is
mapped to its storage key by replacing every "." with "_". Router, reader,
writer and the admin commands all call NormalizeKey; a second
implementation anywhere else makes records silently unreachable.

	key := domain.NormalizeKey("shop.example.com") // "shop_example_com"

Domain configuration:
A DomainConfig holds the two origins and the fraction of fresh visitors
sent to origin A. Records are stored as JSON and decoded tolerantly with
DecodeConfig; a record without both URLs is not routable.

Variants:
AssignVariant is a pure function of a random draw and the split, so callers
inject the draw:

	v := domain.AssignVariant(rand.Float64(), cfg.EffectiveSplit())

Stickiness is kept only in the visitor's cookie, named by CookieName.
*/
package domain
