package events

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const eigenPodManagerABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "eigenPod", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "podOwner", "type": "address"}
    ],
    "name": "PodDeployed",
    "type": "event"
  }
]`

const depositContractABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "bytes", "name": "pubkey", "type": "bytes"},
      {"indexed": false, "internalType": "bytes", "name": "withdrawal_credentials", "type": "bytes"},
      {"indexed": false, "internalType": "bytes", "name": "amount", "type": "bytes"},
      {"indexed": false, "internalType": "bytes", "name": "signature", "type": "bytes"},
      {"indexed": false, "internalType": "bytes", "name": "index", "type": "bytes"}
    ],
    "name": "DepositEvent",
    "type": "event"
  }
]`

var (
	eigenPodManagerABI     abi.ABI
	eigenPodManagerABIOnce sync.Once
	eigenPodManagerABIErr  error

	depositContractABI     abi.ABI
	depositContractABIOnce sync.Once
	depositContractABIErr  error
)

// EigenPodManagerABI returns the parsed EigenPodManager event ABI.
func EigenPodManagerABI() (abi.ABI, error) {
	eigenPodManagerABIOnce.Do(func() {
		eigenPodManagerABI, eigenPodManagerABIErr = abi.JSON(strings.NewReader(eigenPodManagerABIJSON))
	})
	return eigenPodManagerABI, eigenPodManagerABIErr
}

// DepositContractABI returns the parsed beacon deposit contract event ABI.
func DepositContractABI() (abi.ABI, error) {
	depositContractABIOnce.Do(func() {
		depositContractABI, depositContractABIErr = abi.JSON(strings.NewReader(depositContractABIJSON))
	})
	return depositContractABI, depositContractABIErr
}
