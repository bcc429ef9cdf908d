// Package models defines the core domain models for the susu engine.
//
// # Entities
//
//   - Group: a rotating savings circle and the policy parameters its members inherit
//   - Membership: one user's seat in a group, including their turn position
//   - ContributionSchedule: one obligation per membership per cycle
//   - PayoutSchedule: one membership's place in the payout queue
//   - AuditEntry: a record of a successful state transition
//
// # Design Principles
//
// 1. **Explicit status**: every entity carries a status drawn from a closed set
// 2. **Derived lateness**: overdue/late classification is computed at read time,
// never stored, so it cannot drift from the clock
// 3. **ID references**: entities reference each other by ID string, never by pointer
// 4. **Decimal money**: amounts use shopspring/decimal to avoid float rounding
package models
