package migration

import (
	"testing"

	"github.com/crossorg/migrator/internal/domain"
)

func TestIsSystemField(t *testing.T) {
	for _, name := range []string{"Id", "CreatedDate", "createdbyid", "LastModifiedDate", "SystemModstamp", "IsDeleted", "SetupOwnerId"} {
		if !IsSystemField(name) {
			t.Errorf("IsSystemField(%q) = false, want true", name)
		}
	}
	if IsSystemField("Name") {
		t.Error("IsSystemField(Name) = true, want false")
	}
}

func TestCompatible(t *testing.T) {
	cases := []struct {
		a, b domain.FieldType
		want bool
	}{
		{domain.FieldTypeString, domain.FieldTypePicklist, true},
		{domain.FieldTypePicklist, domain.FieldTypeString, true},
		{domain.FieldTypeEmail, domain.FieldTypeTextarea, true},
		{domain.FieldTypeInt, domain.FieldTypeCurrency, true},
		{domain.FieldTypeBoolean, domain.FieldTypeCheckbox, true},
		{domain.FieldTypeDate, domain.FieldTypeDatetime, true},
		{domain.FieldTypeString, domain.FieldTypeDouble, false},
		{domain.FieldTypeReference, domain.FieldTypeString, false},
		{domain.FieldTypeID, domain.FieldTypeReference, false},
	}
	for _, tc := range cases {
		if got := Compatible(tc.a, tc.b); got != tc.want {
			t.Errorf("Compatible(%s, %s) = %t, want %t", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestGenerateMappingSkipsSystemFields(t *testing.T) {
	source := domain.ObjectSchema{
		ObjectType: "Account",
		Fields: []domain.FieldDescription{
			{Name: "Id", Type: domain.FieldTypeID},
			{Name: "CreatedDate", Type: domain.FieldTypeDatetime},
			textField("Name"),
		},
	}
	target := domain.ObjectSchema{
		ObjectType: "Account",
		Fields: []domain.FieldDescription{
			{Name: "Id", Type: domain.FieldTypeID},
			{Name: "CreatedDate", Type: domain.FieldTypeDatetime},
			textField("Name"),
		},
	}

	mapping := GenerateMapping(source, target, DefaultTemplate("Account"))
	if _, ok := mapping.Fields["Id"]; ok {
		t.Error("Id must never be mapped")
	}
	if _, ok := mapping.Fields["CreatedDate"]; ok {
		t.Error("CreatedDate must never be mapped")
	}
	fm, ok := mapping.Fields["Name"]
	if !ok || fm.TargetField != "Name" || fm.Kind != domain.TransformDirect {
		t.Fatalf("Name mapping = %+v, want direct to Name", fm)
	}
}

func TestGenerateMappingAcrossNamespaces(t *testing.T) {
	source := domain.ObjectSchema{
		ObjectType: "tc9_pr__Pay_Rate__c",
		Fields:     []domain.FieldDescription{textField("tc9_pr__Rate__c")},
	}
	target := domain.ObjectSchema{
		ObjectType: "Pay_Rate__c",
		Fields:     []domain.FieldDescription{textField("Rate__c")},
	}

	mapping := GenerateMapping(source, target, DefaultTemplate("tc9_pr__Pay_Rate__c"))
	fm, ok := mapping.Fields["tc9_pr__Rate__c"]
	if !ok {
		t.Fatal("namespaced source field was not mapped")
	}
	if fm.TargetField != "Rate__c" {
		t.Fatalf("target field = %q, want Rate__c", fm.TargetField)
	}
}

func TestGenerateMappingDropsIncompatibleTypes(t *testing.T) {
	source := domain.ObjectSchema{
		ObjectType: "Item",
		Fields:     []domain.FieldDescription{textField("Amount__c")},
	}
	target := domain.ObjectSchema{
		ObjectType: "Item",
		Fields: []domain.FieldDescription{{
			Name: "Amount__c", Type: domain.FieldTypeCurrency, Createable: true,
		}},
	}

	mapping := GenerateMapping(source, target, DefaultTemplate("Item"))
	if _, ok := mapping.Fields["Amount__c"]; ok {
		t.Fatal("string source must not map onto a currency target")
	}
}

func TestGenerateMappingDropsUnwritableTargets(t *testing.T) {
	source := domain.ObjectSchema{
		ObjectType: "Item",
		Fields:     []domain.FieldDescription{textField("Code__c")},
	}
	target := domain.ObjectSchema{
		ObjectType: "Item",
		Fields: []domain.FieldDescription{{
			Name: "Code__c", Type: domain.FieldTypeString, Createable: false,
		}},
	}

	mapping := GenerateMapping(source, target, DefaultTemplate("Item"))
	if _, ok := mapping.Fields["Code__c"]; ok {
		t.Fatal("read-only target field must not receive a mapping")
	}
}

func TestGenerateMappingReferenceBecomesLookup(t *testing.T) {
	source := domain.ObjectSchema{
		ObjectType: "Contact",
		Fields:     []domain.FieldDescription{refField("AccountId", "Account")},
	}
	target := domain.ObjectSchema{
		ObjectType: "Contact",
		Fields:     []domain.FieldDescription{refField("AccountId", "Account")},
	}

	mapping := GenerateMapping(source, target, DefaultTemplate("Contact"))
	fm, ok := mapping.Fields["AccountId"]
	if !ok {
		t.Fatal("reference field was not mapped")
	}
	if fm.Kind != domain.TransformLookup {
		t.Fatalf("kind = %s, want lookup", fm.Kind)
	}
	if fm.ReferenceTo != "Account" {
		t.Fatalf("referenceTo = %q, want Account", fm.ReferenceTo)
	}
	if mapping.Relationships["AccountId"] != "AccountId" {
		t.Fatalf("relationships = %v, want AccountId -> AccountId", mapping.Relationships)
	}
}

func TestGenerateMappingDropsOrphanReference(t *testing.T) {
	source := domain.ObjectSchema{
		ObjectType: "Contact",
		Fields:     []domain.FieldDescription{refField("Legacy_Parent__c", "Legacy__c")},
	}
	target := domain.ObjectSchema{
		ObjectType: "Contact",
		Fields:     []domain.FieldDescription{textField("Name")},
	}

	mapping := GenerateMapping(source, target, DefaultTemplate("Contact"))
	if _, ok := mapping.Fields["Legacy_Parent__c"]; ok {
		t.Fatal("reference without a target counterpart must be dropped")
	}
}

func TestGenerateMappingBackfillsRequiredTargets(t *testing.T) {
	source := domain.ObjectSchema{
		ObjectType: "Lead",
		Fields:     []domain.FieldDescription{textField("Name")},
	}
	target := domain.ObjectSchema{
		ObjectType: "Lead",
		Fields: []domain.FieldDescription{
			textField("Name"),
			{Name: "Email__c", Type: domain.FieldTypeEmail, Createable: true, Required: true},
			{Name: "Count__c", Type: domain.FieldTypeInt, Createable: true, Required: true},
		},
	}

	mapping := GenerateMapping(source, target, DefaultTemplate("Lead"))
	email, ok := mapping.Fields["Email__c"]
	if !ok || email.Kind != domain.TransformConstant {
		t.Fatalf("Email__c mapping = %+v, want constant backfill", email)
	}
	if email.Default != "placeholder@example.com" {
		t.Fatalf("email default = %v, want placeholder address", email.Default)
	}
	count, ok := mapping.Fields["Count__c"]
	if !ok || count.Default != 0 {
		t.Fatalf("Count__c mapping = %+v, want constant zero", count)
	}
}

func TestGenerateMappingHonoursOverrides(t *testing.T) {
	source := domain.ObjectSchema{
		ObjectType: "Account",
		Fields:     []domain.FieldDescription{textField("Name")},
	}
	target := domain.ObjectSchema{
		ObjectType: "Account",
		Fields:     []domain.FieldDescription{textField("Name"), textField("Legal_Name__c")},
	}
	tmpl := DefaultTemplate("Account")
	tmpl.FieldOverrides = map[string]domain.FieldMapping{
		"Name": {TargetField: "Legal_Name__c", Kind: domain.TransformFormula, Formula: domain.FormulaUppercase},
	}

	mapping := GenerateMapping(source, target, tmpl)
	fm := mapping.Fields["Name"]
	if fm.TargetField != "Legal_Name__c" || fm.Kind != domain.TransformFormula {
		t.Fatalf("override not honoured: %+v", fm)
	}
}
