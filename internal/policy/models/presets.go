package models

import attestation "zerotrust/internal/attestation/models"

// Baseline scope identifiers, one per compliance tier.
const (
	ScopeBaselineBasic         = "baseline/basic/v1"
	ScopeBaselineStandard      = "baseline/standard/v1"
	ScopeBaselineEnhanced      = "baseline/enhanced/v1"
	ScopeBaselineInstitutional = "baseline/institutional/v1"
)

func leaf(attr string, op Op, value any) Expr {
	return Expr{Attribute: attr, Op: op, Value: value}
}

// Baseline returns the built-in tiered policies. Each tier tightens the previous one:
// basic needs verified KYC and cleared sanctions, standard caps AML risk at medium,
// enhanced requires low AML risk. Institutional carries the enhanced rule; the
// extra condition that the attestation is unexpired is enforced by the
// disclosure verifier before any policy runs.
func Baseline() []Document {
	kyc := leaf(attestation.AttrKYCStatus, OpEq, "verified")
	sanctions := leaf(attestation.AttrSanctionsCleared, OpEq, true)
	return []Document{
		{
			ScopeID:      ScopeBaselineBasic,
			Jurisdiction: "GLOBAL",
			Description:  "Verified KYC with cleared sanctions screening",
			Rule:         Expr{All: []Expr{kyc, sanctions}},
		},
		{
			ScopeID:      ScopeBaselineStandard,
			Jurisdiction: "GLOBAL",
			Description:  "Basic plus AML risk no higher than medium",
			Rule:         Expr{All: []Expr{kyc, sanctions, leaf(attestation.AttrAMLRiskLevel, OpLe, "medium")}},
		},
		{
			ScopeID:      ScopeBaselineEnhanced,
			Jurisdiction: "GLOBAL",
			Description:  "Basic plus low AML risk",
			Rule:         Expr{All: []Expr{kyc, sanctions, leaf(attestation.AttrAMLRiskLevel, OpEq, "low")}},
		},
		{
			ScopeID:      ScopeBaselineInstitutional,
			Jurisdiction: "GLOBAL",
			Description:  "Low AML risk on an unexpired attestation",
			Rule:         Expr{All: []Expr{kyc, sanctions, leaf(attestation.AttrAMLRiskLevel, OpEq, "low")}},
		},
	}
}
