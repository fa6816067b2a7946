// Package pgstore is the postgres-backed implementation of store.Store,
// using github.com/jackc/pgx/v5 for connection pooling and query execution.
// It shares internal/store's Clause AST and Value tagging with sqlitestore,
// differing only in placeholder syntax ($N instead of ?) and DDL types.
package pgstore

import "github.com/johanix/keyenforcer/internal/store"

const schemaVersion = 1

const (
	TablePolicy          = "policy"
	TablePolicyKey        = "policykey"
	TableHsmKey           = "hsmkey"
	TableZone             = "zone"
	TableKeyData          = "keydata"
	TableKeyState         = "keystate"
	TableKeyDependency    = "keydependency"
	TableDatabaseVersion  = "databaseversion"
)

var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS ` + TableDatabaseVersion + ` (
		version BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TablePolicy + ` (
		id TEXT PRIMARY KEY,
		rev BIGINT NOT NULL,
		name TEXT NOT NULL UNIQUE,
		resigninterval BIGINT NOT NULL,
		refreshinterval BIGINT NOT NULL,
		jitter BIGINT NOT NULL,
		inceptionoffset BIGINT NOT NULL,
		validitydefault BIGINT NOT NULL,
		validitydenial BIGINT NOT NULL,
		validitykeyset BIGINT,
		keyttl BIGINT NOT NULL,
		publishsafety BIGINT NOT NULL,
		retiresafety BIGINT NOT NULL,
		purgeafter BIGINT NOT NULL,
		zonepropagationdelay BIGINT NOT NULL,
		soattl BIGINT NOT NULL,
		soaminimum BIGINT NOT NULL,
		serialstyle TEXT NOT NULL,
		parentpropagationdelay BIGINT NOT NULL,
		parentdsttl BIGINT NOT NULL,
		parentsoattl BIGINT NOT NULL,
		parentsoaminimum BIGINT NOT NULL,
		registrationdelay BIGINT NOT NULL,
		denialtype TEXT NOT NULL,
		denialoptout BIGINT NOT NULL,
		denialiterations BIGINT NOT NULL,
		denialsaltlength BIGINT NOT NULL,
		denialalgorithm BIGINT NOT NULL,
		denialresaltinterval BIGINT NOT NULL,
		denialsaltlastchange BIGINT NOT NULL,
		denialsalt TEXT NOT NULL,
		keysshared BIGINT NOT NULL,
		passthrough BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TablePolicyKey + ` (
		id TEXT PRIMARY KEY,
		rev BIGINT NOT NULL,
		policyid TEXT NOT NULL REFERENCES policy(id),
		role TEXT NOT NULL,
		algorithm BIGINT NOT NULL,
		bits BIGINT NOT NULL,
		lifetime BIGINT NOT NULL,
		repository TEXT NOT NULL,
		standby BIGINT NOT NULL,
		manualrollover BIGINT NOT NULL,
		rfc5011 BIGINT NOT NULL,
		minimize BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableHsmKey + ` (
		id TEXT PRIMARY KEY,
		rev BIGINT NOT NULL,
		algorithm BIGINT NOT NULL,
		bits BIGINT NOT NULL,
		role TEXT NOT NULL,
		repository TEXT NOT NULL,
		hsmuuid TEXT NOT NULL UNIQUE,
		inception BIGINT NOT NULL,
		state TEXT NOT NULL,
		backup BIGINT NOT NULL,
		keytype TEXT NOT NULL,
		policyid TEXT NOT NULL REFERENCES policy(id)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableZone + ` (
		id TEXT PRIMARY KEY,
		rev BIGINT NOT NULL,
		name TEXT NOT NULL UNIQUE,
		policyid TEXT NOT NULL REFERENCES policy(id),
		signconfpath TEXT NOT NULL,
		signconfneedswriting BIGINT NOT NULL,
		nextchange BIGINT NOT NULL,
		dnskeyttlend BIGINT NOT NULL,
		dsttlend BIGINT NOT NULL,
		rrsigttlend BIGINT NOT NULL,
		rollksknow BIGINT NOT NULL,
		rollzsknow BIGINT NOT NULL,
		rollcsknow BIGINT NOT NULL,
		inputadaptertype TEXT NOT NULL,
		inputadapteruri TEXT NOT NULL,
		outputadaptertype TEXT NOT NULL,
		outputadapteruri TEXT NOT NULL,
		nextkskroll BIGINT NOT NULL,
		nextzskroll BIGINT NOT NULL,
		nextcskroll BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableKeyData + ` (
		id TEXT PRIMARY KEY,
		rev BIGINT NOT NULL,
		zoneid TEXT NOT NULL REFERENCES zone(id),
		hsmkeyid TEXT NOT NULL REFERENCES hsmkey(id),
		role TEXT NOT NULL,
		introducing BIGINT NOT NULL,
		shouldrevoke BIGINT NOT NULL,
		standby BIGINT NOT NULL,
		activeksk BIGINT NOT NULL,
		activezsk BIGINT NOT NULL,
		keytag BIGINT NOT NULL,
		minimize BIGINT NOT NULL,
		dsatparent TEXT NOT NULL,
		inception BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableKeyState + ` (
		id TEXT PRIMARY KEY,
		rev BIGINT NOT NULL,
		keydataid TEXT NOT NULL REFERENCES keydata(id),
		type TEXT NOT NULL,
		state TEXT NOT NULL,
		lastchange BIGINT NOT NULL,
		desiredttl BIGINT NOT NULL,
		minimize BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableKeyDependency + ` (
		id TEXT PRIMARY KEY,
		rev BIGINT NOT NULL,
		zoneid TEXT NOT NULL REFERENCES zone(id),
		fromkeydataid TEXT NOT NULL REFERENCES keydata(id),
		tokeydataid TEXT NOT NULL REFERENCES keydata(id),
		type TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_keydata_zoneid ON ` + TableKeyData + `(zoneid)`,
	`CREATE INDEX IF NOT EXISTS idx_keystate_keydataid ON ` + TableKeyState + `(keydataid)`,
	`CREATE INDEX IF NOT EXISTS idx_hsmkey_policyid ON ` + TableHsmKey + `(policyid)`,
}

// columnTags mirrors sqlitestore's table, lower-cased to match postgres's
// unquoted-identifier folding.
var columnTags = map[string]map[string]store.Tag{
	TablePolicy: {
		"id": store.TagPrimaryKey, "rev": store.TagInt64, "name": store.TagText,
		"resigninterval": store.TagUint32, "refreshinterval": store.TagUint32,
		"jitter": store.TagUint32, "inceptionoffset": store.TagUint32,
		"validitydefault": store.TagUint32, "validitydenial": store.TagUint32,
		"validitykeyset": store.TagUint32, "keyttl": store.TagUint32,
		"publishsafety": store.TagUint32, "retiresafety": store.TagUint32,
		"purgeafter": store.TagUint32, "zonepropagationdelay": store.TagUint32,
		"soattl": store.TagUint32, "soaminimum": store.TagUint32,
		"serialstyle": store.TagEnum, "parentpropagationdelay": store.TagUint32,
		"parentdsttl": store.TagUint32, "parentsoattl": store.TagUint32,
		"parentsoaminimum": store.TagUint32, "registrationdelay": store.TagUint32,
		"denialtype": store.TagEnum, "denialoptout": store.TagUint32,
		"denialiterations": store.TagUint32, "denialsaltlength": store.TagUint32,
		"denialalgorithm": store.TagUint32, "denialresaltinterval": store.TagUint32,
		"denialsaltlastchange": store.TagInt64, "denialsalt": store.TagText,
		"keysshared": store.TagUint32, "passthrough": store.TagUint32,
	},
	TablePolicyKey: {
		"id": store.TagPrimaryKey, "rev": store.TagInt64, "policyid": store.TagPrimaryKey,
		"role": store.TagEnum, "algorithm": store.TagUint32, "bits": store.TagInt64,
		"lifetime": store.TagUint32, "repository": store.TagText, "standby": store.TagInt64,
		"manualrollover": store.TagUint32, "rfc5011": store.TagUint32, "minimize": store.TagUint32,
	},
	TableHsmKey: {
		"id": store.TagPrimaryKey, "rev": store.TagInt64, "algorithm": store.TagUint32,
		"bits": store.TagInt64, "role": store.TagEnum, "repository": store.TagText,
		"hsmuuid": store.TagText, "inception": store.TagInt64, "state": store.TagEnum,
		"backup": store.TagUint32, "keytype": store.TagText, "policyid": store.TagPrimaryKey,
	},
	TableZone: {
		"id": store.TagPrimaryKey, "rev": store.TagInt64, "name": store.TagText,
		"policyid": store.TagPrimaryKey, "signconfpath": store.TagText,
		"signconfneedswriting": store.TagUint32, "nextchange": store.TagInt64,
		"dnskeyttlend": store.TagInt64, "dsttlend": store.TagInt64, "rrsigttlend": store.TagInt64,
		"rollksknow": store.TagUint32, "rollzsknow": store.TagUint32, "rollcsknow": store.TagUint32,
		"inputadaptertype": store.TagText, "inputadapteruri": store.TagText,
		"outputadaptertype": store.TagText, "outputadapteruri": store.TagText,
		"nextkskroll": store.TagInt64, "nextzskroll": store.TagInt64, "nextcskroll": store.TagInt64,
	},
	TableKeyData: {
		"id": store.TagPrimaryKey, "rev": store.TagInt64, "zoneid": store.TagPrimaryKey,
		"hsmkeyid": store.TagPrimaryKey, "role": store.TagEnum, "introducing": store.TagUint32,
		"shouldrevoke": store.TagUint32, "standby": store.TagUint32, "activeksk": store.TagUint32,
		"activezsk": store.TagUint32, "keytag": store.TagUint32, "minimize": store.TagUint32,
		"dsatparent": store.TagEnum, "inception": store.TagInt64,
	},
	TableKeyState: {
		"id": store.TagPrimaryKey, "rev": store.TagInt64, "keydataid": store.TagPrimaryKey,
		"type": store.TagEnum, "state": store.TagEnum, "lastchange": store.TagInt64,
		"desiredttl": store.TagUint32, "minimize": store.TagUint32,
	},
	TableKeyDependency: {
		"id": store.TagPrimaryKey, "rev": store.TagInt64, "zoneid": store.TagPrimaryKey,
		"fromkeydataid": store.TagPrimaryKey, "tokeydataid": store.TagPrimaryKey, "type": store.TagEnum,
	},
}
