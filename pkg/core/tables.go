// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package core

import "fmt"

// FieldType is the adapter-facing type of a schema field.
type FieldType string

// Schema field types.
const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldStrings FieldType = "string[]"
	FieldJSON    FieldType = "json"
)

// Reference declares a foreign key.
type Reference struct {
	Model    string
	Field    string
	OnDelete string
}

// Field is one column of a model. The "id" primary key is implicit on every
// model and never listed.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	Unique   bool
	Ref      *Reference
}

// Table is a model's schema fragment. Plugins contribute tables for their own
// models and field extensions for existing ones.
type Table struct {
	Model  string
	Fields []Field
}

// CoreTables returns the schema for the models every deployment carries.
func CoreTables() []Table {
	return []Table{
		{
			Model: ModelUser,
			Fields: []Field{
				{Name: "email", Type: FieldString, Required: true, Unique: true},
				{Name: "name", Type: FieldString},
				{Name: "image", Type: FieldString},
				{Name: "emailVerified", Type: FieldBoolean, Required: true},
				{Name: "createdAt", Type: FieldDate, Required: true},
				{Name: "updatedAt", Type: FieldDate, Required: true},
			},
		},
		{
			Model: ModelSession,
			Fields: []Field{
				{Name: "token", Type: FieldString, Required: true, Unique: true},
				{Name: "userId", Type: FieldString, Required: true, Ref: &Reference{Model: ModelUser, Field: "id", OnDelete: "cascade"}},
				{Name: "expiresAt", Type: FieldDate, Required: true},
				{Name: "createdAt", Type: FieldDate, Required: true},
				{Name: "updatedAt", Type: FieldDate, Required: true},
				{Name: "userAgent", Type: FieldString},
				{Name: "ipAddress", Type: FieldString},
				{Name: "impersonatedBy", Type: FieldString},
				{Name: "activeOrganizationId", Type: FieldString},
			},
		},
		{
			Model: ModelAccount,
			Fields: []Field{
				{Name: "userId", Type: FieldString, Required: true, Ref: &Reference{Model: ModelUser, Field: "id", OnDelete: "cascade"}},
				{Name: "providerId", Type: FieldString, Required: true},
				{Name: "accountId", Type: FieldString, Required: true},
				{Name: "password", Type: FieldString},
				{Name: "accessToken", Type: FieldString},
				{Name: "refreshToken", Type: FieldString},
				{Name: "idToken", Type: FieldString},
				{Name: "scope", Type: FieldString},
				{Name: "accessTokenExpiresAt", Type: FieldDate},
				{Name: "refreshTokenExpiresAt", Type: FieldDate},
				{Name: "createdAt", Type: FieldDate, Required: true},
				{Name: "updatedAt", Type: FieldDate, Required: true},
			},
		},
		{
			Model: ModelVerification,
			Fields: []Field{
				{Name: "identifier", Type: FieldString, Required: true},
				{Name: "value", Type: FieldString, Required: true},
				{Name: "expiresAt", Type: FieldDate, Required: true},
				{Name: "createdAt", Type: FieldDate, Required: true},
				{Name: "updatedAt", Type: FieldDate, Required: true},
			},
		},
		{
			Model: ModelRateLimit,
			Fields: []Field{
				{Name: "key", Type: FieldString, Required: true, Unique: true},
				{Name: "count", Type: FieldNumber, Required: true},
				{Name: "lastRequest", Type: FieldNumber, Required: true},
			},
		},
	}
}

// MergeTables folds plugin schema fragments into the base schema. A fragment
// naming a new model appends a table; a fragment naming an existing model
// appends its fields. Duplicate field names on the same model are an error.
func MergeTables(base []Table, fragments ...[]Table) ([]Table, error) {
	merged := make([]Table, len(base))
	index := make(map[string]int, len(base))
	for i, t := range base {
		merged[i] = Table{Model: t.Model, Fields: append([]Field(nil), t.Fields...)}
		index[t.Model] = i
	}

	for _, fragment := range fragments {
		for _, t := range fragment {
			i, ok := index[t.Model]
			if !ok {
				index[t.Model] = len(merged)
				merged = append(merged, Table{Model: t.Model, Fields: append([]Field(nil), t.Fields...)})
				continue
			}
			for _, f := range t.Fields {
				for _, existing := range merged[i].Fields {
					if existing.Name == f.Name {
						return nil, fmt.Errorf("core: schema merge: model %q already has field %q", t.Model, f.Name)
					}
				}
				merged[i].Fields = append(merged[i].Fields, f)
			}
		}
	}
	return merged, nil
}
