// Package mocks provides centralized mock implementations for testing.
//
// Each mock has function fields that override a method when set, and an
// in-memory default implementation otherwise, so most tests only need to
// seed data:
//
//	users := mocks.NewMockUserStore()
//	users.Users[user.Email] = user
//
//	tokens := &mocks.MockTokenStore{
//	    ExistsFn: func(ctx context.Context, id uuid.UUID) (bool, error) {
//	        return false, nil
//	    },
//	}
//
// When adding a new mock to this package:
//  1. Create a new file named after the interface being mocked
//  2. Implement the mock struct with function fields for each interface method
//  3. Document any helper methods or special functionality
package mocks
