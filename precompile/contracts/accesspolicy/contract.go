// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package accesspolicy implements the access policy precompile: two
// independently managed address sets consulted by the execution layer as a
// pure decision oracle. Code creation is permitted only for members of the
// create-allowed set; calls to members of the call-denied set are rejected.
// The policy itself never creates contracts or performs calls.
package accesspolicy

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	_ "embed"

	"github.com/deployguard/deployguard/precompile/addressset"
	"github.com/deployguard/deployguard/precompile/allowlist"
	"github.com/deployguard/deployguard/precompile/contract"
)

// Set identifiers. These feed the storage key derivation of each set and are
// therefore frozen.
const (
	CreateAllowedSetID byte = 0x01
	CallDeniedSetID    byte = 0x02
)

var (
	// Singleton StatefulPrecompiledContract for the access policy.
	AccessPolicyPrecompile contract.StatefulPrecompiledContract = createAccessPolicyPrecompile()

	// AccessPolicyRawABI contains the raw ABI of AccessPolicy contract.
	//go:embed contract.abi
	AccessPolicyRawABI string

	AccessPolicyABI = contract.ParseABI(AccessPolicyRawABI)
)

// IsCreateAllowed reports whether [creator] may deploy code. Exposed for the
// execution layer, which consults the policy outside of contract dispatch.
func IsCreateAllowed(state contract.StateReader, creator common.Address) bool {
	return addressset.Contains(state, ContractAddress, CreateAllowedSetID, creator)
}

// IsCallDenied reports whether calls to [target] are rejected.
func IsCallDenied(state contract.StateReader, target common.Address) bool {
	return addressset.Contains(state, ContractAddress, CallDeniedSetID, target)
}

// GetAccessPolicyManagerStatus returns the role of [address] for the access
// policy manager list.
func GetAccessPolicyManagerStatus(state contract.StateReader, address common.Address) allowlist.Role {
	return allowlist.GetAllowListStatus(state, ContractAddress, address)
}

// SetAccessPolicyManagerStatus sets the permissions of [address] to [role] for
// the access policy manager list. Assumes [role] has already been verified as
// valid.
func SetAccessPolicyManagerStatus(state contract.StateDB, address common.Address, role allowlist.Role) {
	allowlist.SetAllowListRole(state, ContractAddress, address, role)
}

// PackAddCreateAllowed packs [addr] into the addCreateAllowed call.
// This function is mostly used for tests.
func PackAddCreateAllowed(addr common.Address) ([]byte, error) {
	return AccessPolicyABI.Pack("addCreateAllowed", addr)
}

// PackRemoveCreateAllowed packs [addr] and [prevAddr] into the
// removeCreateAllowed call. This function is mostly used for tests.
func PackRemoveCreateAllowed(addr common.Address, prevAddr common.Address) ([]byte, error) {
	return AccessPolicyABI.Pack("removeCreateAllowed", addr, prevAddr)
}

// PackIsCreateAllowed packs [addr] into the isCreateAllowed call.
// This function is mostly used for tests.
func PackIsCreateAllowed(addr common.Address) ([]byte, error) {
	return AccessPolicyABI.Pack("isCreateAllowed", addr)
}

// PackPaginateCreateAllowed packs the paginateCreateAllowed call.
// This function is mostly used for tests.
func PackPaginateCreateAllowed(cursor common.Address, howMany *big.Int) ([]byte, error) {
	return AccessPolicyABI.Pack("paginateCreateAllowed", cursor, howMany)
}

// PackAddCallDenied packs [addr] into the addCallDenied call.
// This function is mostly used for tests.
func PackAddCallDenied(addr common.Address) ([]byte, error) {
	return AccessPolicyABI.Pack("addCallDenied", addr)
}

// PackRemoveCallDenied packs [addr] and [prevAddr] into the removeCallDenied
// call. This function is mostly used for tests.
func PackRemoveCallDenied(addr common.Address, prevAddr common.Address) ([]byte, error) {
	return AccessPolicyABI.Pack("removeCallDenied", addr, prevAddr)
}

// PackIsCallDenied packs [addr] into the isCallDenied call.
// This function is mostly used for tests.
func PackIsCallDenied(addr common.Address) ([]byte, error) {
	return AccessPolicyABI.Pack("isCallDenied", addr)
}

// PackPaginateCallDenied packs the paginateCallDenied call.
// This function is mostly used for tests.
func PackPaginateCallDenied(cursor common.Address, howMany *big.Int) ([]byte, error) {
	return AccessPolicyABI.Pack("paginateCallDenied", cursor, howMany)
}

// UnpackPaginateOutput unpacks a paginate result into its address page.
func UnpackPaginateOutput(methodName string, output []byte) ([]common.Address, error) {
	res, err := AccessPolicyABI.Unpack(methodName, output)
	if err != nil {
		return nil, err
	}
	return res[0].([]common.Address), nil
}

// createAccessPolicyPrecompile returns a StatefulPrecompiledContract with the
// two set surfaces plus the shared membership functions. Set mutations are
// controlled by the allow list for ContractAddress.
func createAccessPolicyPrecompile() contract.StatefulPrecompiledContract {
	var functions []*contract.StatefulPrecompileFunction
	functions = append(functions, allowlist.CreateAllowListFunctions(ContractAddress)...)

	functions = append(functions, addressset.CreateSetFunctions(ContractAddress, CreateAllowedSetID, AccessPolicyABI, addressset.MethodNames{
		Add:      "addCreateAllowed",
		Remove:   "removeCreateAllowed",
		Contains: "isCreateAllowed",
		Paginate: "paginateCreateAllowed",
	})...)
	functions = append(functions, addressset.CreateSetFunctions(ContractAddress, CallDeniedSetID, AccessPolicyABI, addressset.MethodNames{
		Add:      "addCallDenied",
		Remove:   "removeCallDenied",
		Contains: "isCallDenied",
		Paginate: "paginateCallDenied",
	})...)

	// Construct the contract with no fallback function.
	statefulContract, err := contract.NewStatefulPrecompileContract(nil, functions)
	if err != nil {
		panic(err)
	}
	return statefulContract
}
