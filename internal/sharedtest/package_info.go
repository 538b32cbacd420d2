// Package sharedtest provides helper code and test data that may be used by tests in all magneto
// packages.
//
// Non-test code should never import this package. Tests in the cassette package itself cannot use it,
// since it depends on that package.
package sharedtest
