// Package sqlitestore is the sqlite-backed implementation of store.Store,
// grounded on the teacher's tdns/db.go: a single *sql.DB, table creation on
// open, and a thin Tx wrapper that funnels every statement through one
// logged Exec/Query path.
package sqlitestore

import "github.com/johanix/keyenforcer/internal/store"

// Table names, matching the entity names of internal/model.
const (
	TablePolicy        = "policy"
	TablePolicyKey      = "policyKey"
	TableHsmKey         = "hsmKey"
	TableZone           = "zone"
	TableKeyData        = "keyData"
	TableKeyState       = "keyState"
	TableKeyDependency  = "keyDependency"
	TableDatabaseVersion = "databaseVersion"
)

// schemaVersion is bumped whenever createTables changes shape.
const schemaVersion = 1

var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS ` + TableDatabaseVersion + ` (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TablePolicy + ` (
		id TEXT PRIMARY KEY,
		rev INTEGER NOT NULL,
		name TEXT NOT NULL UNIQUE,
		resignInterval INTEGER NOT NULL,
		refreshInterval INTEGER NOT NULL,
		jitter INTEGER NOT NULL,
		inceptionOffset INTEGER NOT NULL,
		validityDefault INTEGER NOT NULL,
		validityDenial INTEGER NOT NULL,
		validityKeyset INTEGER,
		keyTtl INTEGER NOT NULL,
		publishSafety INTEGER NOT NULL,
		retireSafety INTEGER NOT NULL,
		purgeAfter INTEGER NOT NULL,
		zonePropagationDelay INTEGER NOT NULL,
		soaTtl INTEGER NOT NULL,
		soaMinimum INTEGER NOT NULL,
		serialStyle TEXT NOT NULL,
		parentPropagationDelay INTEGER NOT NULL,
		parentDsTtl INTEGER NOT NULL,
		parentSoaTtl INTEGER NOT NULL,
		parentSoaMinimum INTEGER NOT NULL,
		registrationDelay INTEGER NOT NULL,
		denialType TEXT NOT NULL,
		denialOptOut INTEGER NOT NULL,
		denialIterations INTEGER NOT NULL,
		denialSaltLength INTEGER NOT NULL,
		denialAlgorithm INTEGER NOT NULL,
		denialResaltInterval INTEGER NOT NULL,
		denialSaltLastChange INTEGER NOT NULL,
		denialSalt TEXT NOT NULL,
		keysShared INTEGER NOT NULL,
		passthrough INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TablePolicyKey + ` (
		id TEXT PRIMARY KEY,
		rev INTEGER NOT NULL,
		policyId TEXT NOT NULL REFERENCES policy(id),
		role TEXT NOT NULL,
		algorithm INTEGER NOT NULL,
		bits INTEGER NOT NULL,
		lifetime INTEGER NOT NULL,
		repository TEXT NOT NULL,
		standby INTEGER NOT NULL,
		manualRollover INTEGER NOT NULL,
		rfc5011 INTEGER NOT NULL,
		minimize INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableHsmKey + ` (
		id TEXT PRIMARY KEY,
		rev INTEGER NOT NULL,
		algorithm INTEGER NOT NULL,
		bits INTEGER NOT NULL,
		role TEXT NOT NULL,
		repository TEXT NOT NULL,
		hsmUuid TEXT NOT NULL UNIQUE,
		inception INTEGER NOT NULL,
		state TEXT NOT NULL,
		backup INTEGER NOT NULL,
		keyType TEXT NOT NULL,
		policyId TEXT NOT NULL REFERENCES policy(id)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableZone + ` (
		id TEXT PRIMARY KEY,
		rev INTEGER NOT NULL,
		name TEXT NOT NULL UNIQUE,
		policyId TEXT NOT NULL REFERENCES policy(id),
		signconfPath TEXT NOT NULL,
		signconfNeedsWriting INTEGER NOT NULL,
		nextChange INTEGER NOT NULL,
		dnskeyTtlEnd INTEGER NOT NULL,
		dsTtlEnd INTEGER NOT NULL,
		rrsigTtlEnd INTEGER NOT NULL,
		rollKskNow INTEGER NOT NULL,
		rollZskNow INTEGER NOT NULL,
		rollCskNow INTEGER NOT NULL,
		inputAdapterType TEXT NOT NULL,
		inputAdapterUri TEXT NOT NULL,
		outputAdapterType TEXT NOT NULL,
		outputAdapterUri TEXT NOT NULL,
		nextKskRoll INTEGER NOT NULL,
		nextZskRoll INTEGER NOT NULL,
		nextCskRoll INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableKeyData + ` (
		id TEXT PRIMARY KEY,
		rev INTEGER NOT NULL,
		zoneId TEXT NOT NULL REFERENCES zone(id),
		hsmKeyId TEXT NOT NULL REFERENCES hsmKey(id),
		role TEXT NOT NULL,
		introducing INTEGER NOT NULL,
		shouldRevoke INTEGER NOT NULL,
		standby INTEGER NOT NULL,
		activeKsk INTEGER NOT NULL,
		activeZsk INTEGER NOT NULL,
		keytag INTEGER NOT NULL,
		minimize INTEGER NOT NULL,
		dsAtParent TEXT NOT NULL,
		inception INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableKeyState + ` (
		id TEXT PRIMARY KEY,
		rev INTEGER NOT NULL,
		keyDataId TEXT NOT NULL REFERENCES keyData(id),
		type TEXT NOT NULL,
		state TEXT NOT NULL,
		lastChange INTEGER NOT NULL,
		desiredTtl INTEGER NOT NULL,
		minimize INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableKeyDependency + ` (
		id TEXT PRIMARY KEY,
		rev INTEGER NOT NULL,
		zoneId TEXT NOT NULL REFERENCES zone(id),
		fromKeyDataId TEXT NOT NULL REFERENCES keyData(id),
		toKeyDataId TEXT NOT NULL REFERENCES keyData(id),
		type TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_keyData_zoneId ON ` + TableKeyData + `(zoneId)`,
	`CREATE INDEX IF NOT EXISTS idx_keyState_keyDataId ON ` + TableKeyState + `(keyDataId)`,
	`CREATE INDEX IF NOT EXISTS idx_hsmKey_policyId ON ` + TableHsmKey + `(policyId)`,
}

// columnTags records each table's column->Tag mapping so a scanned row's
// driver-native value can be re-wrapped with the correct store.Value tag
// (spec.md §4.5's tagged Value applies uniformly across read paths, not
// just the ones the caller explicitly typed).
var columnTags = map[string]map[string]store.Tag{
	TablePolicy: {
		"id": store.TagPrimaryKey, "rev": store.TagInt64, "name": store.TagText,
		"resignInterval": store.TagUint32, "refreshInterval": store.TagUint32,
		"jitter": store.TagUint32, "inceptionOffset": store.TagUint32,
		"validityDefault": store.TagUint32, "validityDenial": store.TagUint32,
		"validityKeyset": store.TagUint32, "keyTtl": store.TagUint32,
		"publishSafety": store.TagUint32, "retireSafety": store.TagUint32,
		"purgeAfter": store.TagUint32, "zonePropagationDelay": store.TagUint32,
		"soaTtl": store.TagUint32, "soaMinimum": store.TagUint32,
		"serialStyle": store.TagEnum, "parentPropagationDelay": store.TagUint32,
		"parentDsTtl": store.TagUint32, "parentSoaTtl": store.TagUint32,
		"parentSoaMinimum": store.TagUint32, "registrationDelay": store.TagUint32,
		"denialType": store.TagEnum, "denialOptOut": store.TagUint32,
		"denialIterations": store.TagUint32, "denialSaltLength": store.TagUint32,
		"denialAlgorithm": store.TagUint32, "denialResaltInterval": store.TagUint32,
		"denialSaltLastChange": store.TagInt64, "denialSalt": store.TagText,
		"keysShared": store.TagUint32, "passthrough": store.TagUint32,
	},
	TablePolicyKey: {
		"id": store.TagPrimaryKey, "rev": store.TagInt64, "policyId": store.TagPrimaryKey,
		"role": store.TagEnum, "algorithm": store.TagUint32, "bits": store.TagInt64,
		"lifetime": store.TagUint32, "repository": store.TagText, "standby": store.TagInt64,
		"manualRollover": store.TagUint32, "rfc5011": store.TagUint32, "minimize": store.TagUint32,
	},
	TableHsmKey: {
		"id": store.TagPrimaryKey, "rev": store.TagInt64, "algorithm": store.TagUint32,
		"bits": store.TagInt64, "role": store.TagEnum, "repository": store.TagText,
		"hsmUuid": store.TagText, "inception": store.TagInt64, "state": store.TagEnum,
		"backup": store.TagUint32, "keyType": store.TagText, "policyId": store.TagPrimaryKey,
	},
	TableZone: {
		"id": store.TagPrimaryKey, "rev": store.TagInt64, "name": store.TagText,
		"policyId": store.TagPrimaryKey, "signconfPath": store.TagText,
		"signconfNeedsWriting": store.TagUint32, "nextChange": store.TagInt64,
		"dnskeyTtlEnd": store.TagInt64, "dsTtlEnd": store.TagInt64, "rrsigTtlEnd": store.TagInt64,
		"rollKskNow": store.TagUint32, "rollZskNow": store.TagUint32, "rollCskNow": store.TagUint32,
		"inputAdapterType": store.TagText, "inputAdapterUri": store.TagText,
		"outputAdapterType": store.TagText, "outputAdapterUri": store.TagText,
		"nextKskRoll": store.TagInt64, "nextZskRoll": store.TagInt64, "nextCskRoll": store.TagInt64,
	},
	TableKeyData: {
		"id": store.TagPrimaryKey, "rev": store.TagInt64, "zoneId": store.TagPrimaryKey,
		"hsmKeyId": store.TagPrimaryKey, "role": store.TagEnum, "introducing": store.TagUint32,
		"shouldRevoke": store.TagUint32, "standby": store.TagUint32, "activeKsk": store.TagUint32,
		"activeZsk": store.TagUint32, "keytag": store.TagUint32, "minimize": store.TagUint32,
		"dsAtParent": store.TagEnum, "inception": store.TagInt64,
	},
	TableKeyState: {
		"id": store.TagPrimaryKey, "rev": store.TagInt64, "keyDataId": store.TagPrimaryKey,
		"type": store.TagEnum, "state": store.TagEnum, "lastChange": store.TagInt64,
		"desiredTtl": store.TagUint32, "minimize": store.TagUint32,
	},
	TableKeyDependency: {
		"id": store.TagPrimaryKey, "rev": store.TagInt64, "zoneId": store.TagPrimaryKey,
		"fromKeyDataId": store.TagPrimaryKey, "toKeyDataId": store.TagPrimaryKey, "type": store.TagEnum,
	},
}

// columnOrder fixes each table's column list for INSERT statements.
var columnOrder = map[string][]string{
	TablePolicy: {
		"id", "rev", "name", "resignInterval", "refreshInterval", "jitter", "inceptionOffset",
		"validityDefault", "validityDenial", "validityKeyset", "keyTtl", "publishSafety",
		"retireSafety", "purgeAfter", "zonePropagationDelay", "soaTtl", "soaMinimum",
		"serialStyle", "parentPropagationDelay", "parentDsTtl", "parentSoaTtl",
		"parentSoaMinimum", "registrationDelay", "denialType", "denialOptOut",
		"denialIterations", "denialSaltLength", "denialAlgorithm", "denialResaltInterval",
		"denialSaltLastChange", "denialSalt", "keysShared", "passthrough",
	},
	TablePolicyKey: {
		"id", "rev", "policyId", "role", "algorithm", "bits", "lifetime", "repository",
		"standby", "manualRollover", "rfc5011", "minimize",
	},
	TableHsmKey: {
		"id", "rev", "algorithm", "bits", "role", "repository", "hsmUuid", "inception",
		"state", "backup", "keyType", "policyId",
	},
	TableZone: {
		"id", "rev", "name", "policyId", "signconfPath", "signconfNeedsWriting", "nextChange",
		"dnskeyTtlEnd", "dsTtlEnd", "rrsigTtlEnd", "rollKskNow", "rollZskNow", "rollCskNow",
		"inputAdapterType", "inputAdapterUri", "outputAdapterType", "outputAdapterUri",
		"nextKskRoll", "nextZskRoll", "nextCskRoll",
	},
	TableKeyData: {
		"id", "rev", "zoneId", "hsmKeyId", "role", "introducing", "shouldRevoke", "standby",
		"activeKsk", "activeZsk", "keytag", "minimize", "dsAtParent", "inception",
	},
	TableKeyState: {
		"id", "rev", "keyDataId", "type", "state", "lastChange", "desiredTtl", "minimize",
	},
	TableKeyDependency: {
		"id", "rev", "zoneId", "fromKeyDataId", "toKeyDataId", "type",
	},
}
