package zoneupdate

import (
	"time"

	"github.com/johanix/keyenforcer/internal/model"
	"github.com/johanix/keyenforcer/internal/store"
)

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func u2b(v store.Value) bool {
	n, _ := v.AsInt64()
	return n != 0
}

func txt(v store.Value) string { s, _ := v.AsText(); return s }
func i64(v store.Value) int64  { n, _ := v.AsInt64(); return n }
func u32(v store.Value) uint32 { n, _ := v.AsInt64(); return uint32(n) }
func ts(v store.Value) time.Time {
	n, _ := v.AsInt64()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

var policyFields = []string{
	"name", "resignInterval", "refreshInterval", "jitter", "inceptionOffset",
	"validityDefault", "validityDenial", "validityKeyset", "keyTtl",
	"publishSafety", "retireSafety", "purgeAfter", "zonePropagationDelay",
	"soaTtl", "soaMinimum", "serialStyle", "parentPropagationDelay",
	"parentDsTtl", "parentSoaTtl", "parentSoaMinimum", "registrationDelay",
	"denialType", "denialOptOut", "denialIterations", "denialSaltLength",
	"denialAlgorithm", "denialResaltInterval", "denialSaltLastChange",
	"denialSalt", "keysShared", "passthrough",
}

func decodePolicy(row store.Row) model.Policy {
	var p model.Policy
	p.ID = model.ID(txt(row["id"]))
	p.Rev = model.Revision(i64(row["rev"]))
	p.Name = txt(row["name"])
	p.ResignInterval = u32(row["resignInterval"])
	p.RefreshInterval = u32(row["refreshInterval"])
	p.Jitter = u32(row["jitter"])
	p.InceptionOffset = u32(row["inceptionOffset"])
	p.ValidityDefault = u32(row["validityDefault"])
	p.ValidityDenial = u32(row["validityDenial"])
	if row["validityKeyset"].Tag() != store.TagEmpty {
		v := u32(row["validityKeyset"])
		p.ValidityKeyset = &v
	}
	p.KeyTTL = u32(row["keyTtl"])
	p.PublishSafety = u32(row["publishSafety"])
	p.RetireSafety = u32(row["retireSafety"])
	p.PurgeAfter = u32(row["purgeAfter"])
	p.ZonePropagationDelay = u32(row["zonePropagationDelay"])
	p.SOATTL = u32(row["soaTtl"])
	p.SOAMinimum = u32(row["soaMinimum"])
	p.SerialStyle = model.SerialStyle(txt(row["serialStyle"]))
	p.ParentPropagationDelay = u32(row["parentPropagationDelay"])
	p.ParentDSTTL = u32(row["parentDsTtl"])
	p.ParentSOATTL = u32(row["parentSoaTtl"])
	p.ParentSOAMinimum = u32(row["parentSoaMinimum"])
	p.RegistrationDelay = u32(row["registrationDelay"])
	p.Denial = model.DenialPolicy{
		Type:           model.DenialType(txt(row["denialType"])),
		OptOut:         u2b(row["denialOptOut"]),
		Iterations:     uint16(i64(row["denialIterations"])),
		SaltLength:     uint8(i64(row["denialSaltLength"])),
		Algorithm:      uint8(i64(row["denialAlgorithm"])),
		ResaltInterval: u32(row["denialResaltInterval"]),
		SaltLastChange: ts(row["denialSaltLastChange"]),
		Salt:           txt(row["denialSalt"]),
	}
	p.KeysShared = u2b(row["keysShared"])
	p.Passthrough = u2b(row["passthrough"])
	return p
}

func encodePolicyValues(p model.Policy) []store.Value {
	var keyset store.Value
	if p.ValidityKeyset != nil {
		keyset = store.Uint32(*p.ValidityKeyset)
	} else {
		keyset = store.Empty()
	}
	return []store.Value{
		store.Text(p.Name),
		store.Uint32(p.ResignInterval), store.Uint32(p.RefreshInterval),
		store.Uint32(p.Jitter), store.Uint32(p.InceptionOffset),
		store.Uint32(p.ValidityDefault), store.Uint32(p.ValidityDenial), keyset,
		store.Uint32(p.KeyTTL), store.Uint32(p.PublishSafety), store.Uint32(p.RetireSafety),
		store.Uint32(p.PurgeAfter), store.Uint32(p.ZonePropagationDelay),
		store.Uint32(p.SOATTL), store.Uint32(p.SOAMinimum), store.Enum(string(p.SerialStyle)),
		store.Uint32(p.ParentPropagationDelay), store.Uint32(p.ParentDSTTL),
		store.Uint32(p.ParentSOATTL), store.Uint32(p.ParentSOAMinimum), store.Uint32(p.RegistrationDelay),
		store.Enum(string(p.Denial.Type)), store.Uint32(b2u(p.Denial.OptOut)),
		store.Uint32(uint32(p.Denial.Iterations)), store.Uint32(uint32(p.Denial.SaltLength)),
		store.Uint32(uint32(p.Denial.Algorithm)), store.Uint32(p.Denial.ResaltInterval),
		store.Int64(p.Denial.SaltLastChange.Unix()), store.Text(p.Denial.Salt),
		store.Uint32(b2u(p.KeysShared)), store.Uint32(b2u(p.Passthrough)),
	}
}

var policyKeyFields = []string{
	"policyId", "role", "algorithm", "bits", "lifetime", "repository",
	"standby", "manualRollover", "rfc5011", "minimize",
}

func decodePolicyKey(row store.Row) model.PolicyKey {
	var pk model.PolicyKey
	pk.ID = model.ID(txt(row["id"]))
	pk.Rev = model.Revision(i64(row["rev"]))
	pk.PolicyID = model.ID(txt(row["policyId"]))
	pk.Role = model.Role(txt(row["role"]))
	pk.Algorithm = uint8(i64(row["algorithm"]))
	pk.Bits = int(i64(row["bits"]))
	pk.Lifetime = u32(row["lifetime"])
	pk.Repository = txt(row["repository"])
	pk.Standby = int(i64(row["standby"]))
	pk.ManualRollover = u2b(row["manualRollover"])
	pk.RFC5011 = u2b(row["rfc5011"])
	pk.Minimize = model.Minimize(i64(row["minimize"]))
	return pk
}

var zoneFields = []string{
	"name", "policyId", "signconfPath", "signconfNeedsWriting", "nextChange",
	"dnskeyTtlEnd", "dsTtlEnd", "rrsigTtlEnd", "rollKskNow", "rollZskNow",
	"rollCskNow", "inputAdapterType", "inputAdapterUri", "outputAdapterType",
	"outputAdapterUri", "nextKskRoll", "nextZskRoll", "nextCskRoll",
}

func decodeZone(row store.Row) model.Zone {
	var z model.Zone
	z.ID = model.ID(txt(row["id"]))
	z.Rev = model.Revision(i64(row["rev"]))
	z.Name = txt(row["name"])
	z.PolicyID = model.ID(txt(row["policyId"]))
	z.SignconfPath = txt(row["signconfPath"])
	z.SignconfNeedsWriting = u2b(row["signconfNeedsWriting"])
	z.NextChange = ts(row["nextChange"])
	z.DNSKEYTTLEnd = ts(row["dnskeyTtlEnd"])
	z.DSTTLEnd = ts(row["dsTtlEnd"])
	z.RRSIGTTLEnd = ts(row["rrsigTtlEnd"])
	z.RollKSKNow = u2b(row["rollKskNow"])
	z.RollZSKNow = u2b(row["rollZskNow"])
	z.RollCSKNow = u2b(row["rollCskNow"])
	z.InputAdapterType = txt(row["inputAdapterType"])
	z.InputAdapterURI = txt(row["inputAdapterUri"])
	z.OutputAdapterType = txt(row["outputAdapterType"])
	z.OutputAdapterURI = txt(row["outputAdapterUri"])
	z.NextKSKRoll = ts(row["nextKskRoll"])
	z.NextZSKRoll = ts(row["nextZskRoll"])
	z.NextCSKRoll = ts(row["nextCskRoll"])
	return z
}

func encodeZoneValues(z model.Zone) []store.Value {
	return []store.Value{
		store.Text(z.Name), store.PrimaryKey(string(z.PolicyID)), store.Text(z.SignconfPath),
		store.Uint32(b2u(z.SignconfNeedsWriting)), store.Int64(z.NextChange.Unix()),
		store.Int64(z.DNSKEYTTLEnd.Unix()), store.Int64(z.DSTTLEnd.Unix()), store.Int64(z.RRSIGTTLEnd.Unix()),
		store.Uint32(b2u(z.RollKSKNow)), store.Uint32(b2u(z.RollZSKNow)), store.Uint32(b2u(z.RollCSKNow)),
		store.Text(z.InputAdapterType), store.Text(z.InputAdapterURI),
		store.Text(z.OutputAdapterType), store.Text(z.OutputAdapterURI),
		store.Int64(z.NextKSKRoll.Unix()), store.Int64(z.NextZSKRoll.Unix()), store.Int64(z.NextCSKRoll.Unix()),
	}
}

var keyDataFields = []string{
	"zoneId", "hsmKeyId", "role", "introducing", "shouldRevoke", "standby",
	"activeKsk", "activeZsk", "keytag", "minimize", "dsAtParent", "inception",
}

func decodeKeyData(row store.Row) model.KeyData {
	var kd model.KeyData
	kd.ID = model.ID(txt(row["id"]))
	kd.Rev = model.Revision(i64(row["rev"]))
	kd.ZoneID = model.ID(txt(row["zoneId"]))
	kd.HsmKeyID = model.ID(txt(row["hsmKeyId"]))
	kd.Role = model.Role(txt(row["role"]))
	kd.Introducing = u2b(row["introducing"])
	kd.ShouldRevoke = u2b(row["shouldRevoke"])
	kd.Standby = u2b(row["standby"])
	kd.ActiveKSK = u2b(row["activeKsk"])
	kd.ActiveZSK = u2b(row["activeZsk"])
	kd.Keytag = uint16(i64(row["keytag"]))
	kd.Minimize = model.Minimize(i64(row["minimize"]))
	kd.DSAtParent = model.DSAtParent(txt(row["dsAtParent"]))
	kd.Inception = ts(row["inception"])
	return kd
}

func encodeKeyDataValues(kd model.KeyData) []store.Value {
	return []store.Value{
		store.PrimaryKey(string(kd.ZoneID)), store.PrimaryKey(string(kd.HsmKeyID)),
		store.Enum(string(kd.Role)), store.Uint32(b2u(kd.Introducing)), store.Uint32(b2u(kd.ShouldRevoke)),
		store.Uint32(b2u(kd.Standby)), store.Uint32(b2u(kd.ActiveKSK)), store.Uint32(b2u(kd.ActiveZSK)),
		store.Uint32(uint32(kd.Keytag)), store.Uint32(uint32(kd.Minimize)),
		store.Enum(string(kd.DSAtParent)), store.Int64(kd.Inception.Unix()),
	}
}

var keyStateFields = []string{
	"keyDataId", "type", "state", "lastChange", "desiredTtl", "minimize",
}

func decodeKeyState(row store.Row) model.KeyState {
	var ks model.KeyState
	ks.ID = model.ID(txt(row["id"]))
	ks.Rev = model.Revision(i64(row["rev"]))
	ks.KeyDataID = model.ID(txt(row["keyDataId"]))
	ks.Type = model.RecordType(txt(row["type"]))
	ks.State = model.KeyStateValue(txt(row["state"]))
	ks.LastChange = ts(row["lastChange"])
	ks.DesiredTTL = u32(row["desiredTtl"])
	ks.Minimize = u2b(row["minimize"])
	return ks
}

func encodeKeyStateValues(ks model.KeyState) []store.Value {
	return []store.Value{
		store.PrimaryKey(string(ks.KeyDataID)), store.Enum(string(ks.Type)), store.Enum(string(ks.State)),
		store.Int64(ks.LastChange.Unix()), store.Uint32(ks.DesiredTTL), store.Uint32(b2u(ks.Minimize)),
	}
}

var keyDependencyFields = []string{
	"zoneId", "fromKeyDataId", "toKeyDataId", "type",
}

func decodeKeyDependency(row store.Row) model.KeyDependency {
	var kdp model.KeyDependency
	kdp.ID = model.ID(txt(row["id"]))
	kdp.Rev = model.Revision(i64(row["rev"]))
	kdp.ZoneID = model.ID(txt(row["zoneId"]))
	kdp.FromKeyDataID = model.ID(txt(row["fromKeyDataId"]))
	kdp.ToKeyDataID = model.ID(txt(row["toKeyDataId"]))
	kdp.Type = model.RecordType(txt(row["type"]))
	return kdp
}

func encodeKeyDependencyValues(kdp model.KeyDependency) []store.Value {
	return []store.Value{
		store.PrimaryKey(string(kdp.ZoneID)), store.PrimaryKey(string(kdp.FromKeyDataID)),
		store.PrimaryKey(string(kdp.ToKeyDataID)), store.Enum(string(kdp.Type)),
	}
}
