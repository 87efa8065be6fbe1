// Package contracts holds the ABIs of the InnerLedger contract set.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ForwarderABI subset of the ERC2771Forwarder ABI used by the relay
const ForwarderABI = `[
	{
		"inputs": [{"name": "owner", "type": "address"}],
		"name": "nonces",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{
			"name": "request",
			"type": "tuple",
			"components": [
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "gas", "type": "uint256"},
				{"name": "deadline", "type": "uint48"},
				{"name": "data", "type": "bytes"},
				{"name": "signature", "type": "bytes"}
			]
		}],
		"name": "execute",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [{
			"name": "request",
			"type": "tuple",
			"components": [
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "gas", "type": "uint256"},
				{"name": "deadline", "type": "uint48"},
				{"name": "data", "type": "bytes"},
				{"name": "signature", "type": "bytes"}
			]
		}],
		"name": "verify",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "eip712Domain",
		"outputs": [
			{"name": "fields", "type": "bytes1"},
			{"name": "name", "type": "string"},
			{"name": "version", "type": "string"},
			{"name": "chainId", "type": "uint256"},
			{"name": "verifyingContract", "type": "address"},
			{"name": "salt", "type": "bytes32"},
			{"name": "extensions", "type": "uint256[]"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// InnerLedgerABI ledger functions and events
const InnerLedgerABI = `[
	{
		"inputs": [
			{"name": "emotion", "type": "string"},
			{"name": "contentHash", "type": "bytes32"}
		],
		"name": "createRecord",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "user", "type": "address"}],
		"name": "getRecordCount",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "user", "type": "address"}],
		"name": "getJourney",
		"outputs": [{
			"name": "",
			"type": "tuple[]",
			"components": [
				{"name": "user", "type": "address"},
				{"name": "emotion", "type": "string"},
				{"name": "contentHash", "type": "bytes32"},
				{"name": "timestamp", "type": "uint256"}
			]
		}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "user", "type": "address"},
			{"indexed": false, "name": "contentHash", "type": "bytes32"},
			{"indexed": false, "name": "timestamp", "type": "uint256"}
		],
		"name": "RecordCreated",
		"type": "event"
	}
]`

// GrowthSBTABI soulbound badge reads
const GrowthSBTABI = `[
	{
		"inputs": [{"name": "owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "owner",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var (
	Forwarder   = mustParse(ForwarderABI)
	InnerLedger = mustParse(InnerLedgerABI)
	GrowthSBT   = mustParse(GrowthSBTABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("invalid contract ABI: " + err.Error())
	}
	return parsed
}
