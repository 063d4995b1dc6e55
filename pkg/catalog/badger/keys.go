package badger

import "fmt"

// Key Schema
//
// Every record type lives under its own prefix so range scans never cross
// record types:
//
//	o:{objectID}                               -> JSON StoredObject
//	i:{tenant}\x00{module}\x00{objectID}        -> empty (tenant/module index)
//	l:{lineageID}\x00{version:010d}             -> objectID (version chain)
//	g:{grantID}                                -> JSON ShareGrant
//	r:{objectID}\x00{grantID}                  -> empty (grants of an object)
//	x:{storageKey}                             -> JSON OrphanRecord
//
// The NUL separator cannot appear in ids, tenants, modules or storage keys,
// so prefixes never match a longer neighbour.
const (
	prefixObject  = "o:"
	prefixIndex   = "i:"
	prefixLineage = "l:"
	prefixGrant   = "g:"
	prefixGrantOf = "r:"
	prefixOrphan  = "x:"
)

func keyObject(id string) []byte {
	return []byte(prefixObject + id)
}

func keyIndex(tenant, module, id string) []byte {
	return []byte(prefixIndex + tenant + "\x00" + module + "\x00" + id)
}

// keyIndexPrefix scopes a scan to a tenant, and to a module when one is
// given.
func keyIndexPrefix(tenant, module string) []byte {
	if module == "" {
		return []byte(prefixIndex + tenant + "\x00")
	}
	return []byte(prefixIndex + tenant + "\x00" + module + "\x00")
}

func keyLineage(lineageID string, version int) []byte {
	return []byte(fmt.Sprintf("%s%s\x00%010d", prefixLineage, lineageID, version))
}

func keyLineagePrefix(lineageID string) []byte {
	return []byte(prefixLineage + lineageID + "\x00")
}

func keyGrant(id string) []byte {
	return []byte(prefixGrant + id)
}

func keyGrantOf(objectID, grantID string) []byte {
	return []byte(prefixGrantOf + objectID + "\x00" + grantID)
}

func keyGrantOfPrefix(objectID string) []byte {
	return []byte(prefixGrantOf + objectID + "\x00")
}

func keyOrphan(storageKey string) []byte {
	return []byte(prefixOrphan + storageKey)
}
