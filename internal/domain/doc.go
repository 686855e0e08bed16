// Package domain contains the core business entities of the task service:
// users, tasks and the filters and partial updates applied to them. It holds
// the validation rules and the ownership policy, independent of any storage
// or delivery mechanism.
package domain
