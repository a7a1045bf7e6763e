package schema

// Built-in schema definitions for the file formats the processor
// receives daily. Byte layouts are configuration data; sites with
// different TSYS extract versions register new versions over the API.

// File type codes used across sessions, schemas and archives.
const (
	FileTypeTDDF      = "TDDF"
	FileTypeACH       = "ACH"
	FileTypeIntegrity = "INTEGRITY"
)

// DefaultTDDF returns version 1 of the TSYS TDDF daily detail layout.
func DefaultTDDF() Schema {
	return Schema{
		Name:          "tsys-tddf-v1",
		FileType:      FileTypeTDDF,
		Version:       1,
		IsActive:      true,
		Discriminator: Discriminator{Offset: 0, Length: 2},
		RecordTypes: map[string]RecordLayout{
			"BH": {Width: 80, Fields: []FieldDescriptor{
				{Name: "merchant_number", Start: 2, Length: 16, Kind: KindString},
				{Name: "batch_date", Start: 18, Length: 8, Kind: KindDate},
				{Name: "batch_number", Start: 26, Length: 6, Kind: KindInteger},
			}},
			"DT": {Width: 120, Fields: []FieldDescriptor{
				{Name: "merchant_number", Start: 2, Length: 16, Kind: KindString},
				{Name: "transaction_date", Start: 18, Length: 8, Kind: KindDate},
				{Name: "transaction_amount", Start: 26, Length: 11, Kind: KindDecimal, Scale: 2},
				{Name: "card_number_masked", Start: 37, Length: 16, Kind: KindString},
				{Name: "auth_code", Start: 53, Length: 6, Kind: KindString},
				{Name: "transaction_code", Start: 59, Length: 4, Kind: KindInteger},
				{Name: "reference_number", Start: 63, Length: 23, Kind: KindString},
			}},
			"BT": {Width: 80, Fields: []FieldDescriptor{
				{Name: "merchant_number", Start: 2, Length: 16, Kind: KindString},
				{Name: "record_count", Start: 18, Length: 9, Kind: KindInteger},
				{Name: "batch_amount", Start: 27, Length: 13, Kind: KindDecimal, Scale: 2},
			}},
			"FT": {Width: 40, Fields: []FieldDescriptor{
				{Name: "total_records", Start: 2, Length: 9, Kind: KindInteger},
				{Name: "total_amount", Start: 11, Length: 15, Kind: KindDecimal, Scale: 2},
			}},
		},
	}
}

// DefaultACH returns version 1 of the NACHA-style ACH layout. ACH
// records are 94 bytes with a one-character type code.
func DefaultACH() Schema {
	return Schema{
		Name:          "ach-nacha-v1",
		FileType:      FileTypeACH,
		Version:       1,
		IsActive:      true,
		Discriminator: Discriminator{Offset: 0, Length: 1},
		RecordTypes: map[string]RecordLayout{
			"1": {Width: 94, Fields: []FieldDescriptor{
				{Name: "immediate_destination", Start: 3, Length: 10, Kind: KindString},
				{Name: "immediate_origin", Start: 13, Length: 10, Kind: KindString},
				{Name: "file_creation_date", Start: 23, Length: 6, Kind: KindDate, Format: "060102"},
			}},
			"5": {Width: 94, Fields: []FieldDescriptor{
				{Name: "company_name", Start: 4, Length: 16, Kind: KindString},
				{Name: "company_id", Start: 40, Length: 10, Kind: KindString},
				{Name: "effective_entry_date", Start: 69, Length: 6, Kind: KindDate, Format: "060102"},
			}},
			"6": {Width: 94, Fields: []FieldDescriptor{
				{Name: "transaction_code", Start: 1, Length: 2, Kind: KindInteger},
				{Name: "routing_number", Start: 3, Length: 9, Kind: KindString},
				{Name: "account_number", Start: 12, Length: 17, Kind: KindString},
				{Name: "amount", Start: 29, Length: 10, Kind: KindDecimal, Scale: 2},
				{Name: "individual_name", Start: 54, Length: 22, Kind: KindString},
			}},
			"8": {Width: 94, Fields: []FieldDescriptor{
				{Name: "entry_count", Start: 4, Length: 6, Kind: KindInteger},
				{Name: "total_debit", Start: 20, Length: 12, Kind: KindDecimal, Scale: 2},
				{Name: "total_credit", Start: 32, Length: 12, Kind: KindDecimal, Scale: 2},
			}},
			"9": {Width: 94, Fields: []FieldDescriptor{
				{Name: "batch_count", Start: 1, Length: 6, Kind: KindInteger},
				{Name: "entry_count", Start: 13, Length: 8, Kind: KindInteger},
			}},
		},
	}
}

// DefaultIntegrity returns version 1 of the card-network integrity
// report layout.
func DefaultIntegrity() Schema {
	return Schema{
		Name:          "network-integrity-v1",
		FileType:      FileTypeIntegrity,
		Version:       1,
		IsActive:      true,
		Discriminator: Discriminator{Offset: 0, Length: 2},
		RecordTypes: map[string]RecordLayout{
			"IR": {Width: 100, Fields: []FieldDescriptor{
				{Name: "report_date", Start: 2, Length: 8, Kind: KindDate},
				{Name: "merchant_number", Start: 10, Length: 16, Kind: KindString},
				{Name: "interchange_amount", Start: 26, Length: 11, Kind: KindDecimal, Scale: 2},
				{Name: "downgrade_reason", Start: 37, Length: 30, Kind: KindString},
			}},
		},
	}
}

// DefaultRegistry returns a registry preloaded with the built-in
// schemas. Panics on registration failure; the defaults are covered by
// tests and a failure here is a programming error.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []Schema{DefaultTDDF(), DefaultACH(), DefaultIntegrity()} {
		if _, err := r.Register(s); err != nil {
			panic("invalid built-in schema: " + err.Error())
		}
	}
	return r
}
