// (c) 2025, Deployguard Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Module to facilitate the registration of precompiles and their configuration.
package registry

// Force imports of each precompile to ensure each precompile's init function runs and registers itself
// with the registry.
import (
	_ "github.com/deployguard/deployguard/precompile/contracts/accesspolicy"
	_ "github.com/deployguard/deployguard/precompile/contracts/deployerfactory"
	_ "github.com/deployguard/deployguard/precompile/contracts/metadataregistry"
	_ "github.com/deployguard/deployguard/precompile/contracts/txblockpolicy"
)
