// Package tunneltest provides a contract test suite for tunnel transports.
//
// The contracts drive a real Manager against the transport, so they check the
// observable session behaviour (directory tracking, input, interruption) rather
// than the Channel methods one by one.
package tunneltest

// AllContracts returns all test cases for the contract test suite.
func AllContracts() []TestCase {
	const initialCapacity = 20

	contracts := make([]TestCase, 0, initialCapacity)

	contracts = append(contracts, coreContracts()...)
	contracts = append(contracts, directoryContracts()...)
	contracts = append(contracts, inputContracts()...)
	contracts = append(contracts, interruptContracts()...)
	contracts = append(contracts, fileContracts()...)
	contracts = append(contracts, errorContracts()...)

	return contracts
}
