package cimrepo

func str(name string) FieldSpec      { return FieldSpec{FieldString, 4, name} }
func sid(name string) FieldSpec      { return FieldSpec{FieldBytes, 4, name} }
func boolean(name string) FieldSpec  { return FieldSpec{FieldBool, 2, name} }
func u16(name string) FieldSpec      { return FieldSpec{FieldU16, 2, name} }
func u32(name string) FieldSpec      { return FieldSpec{FieldU32, 4, name} }
func i32(name string) FieldSpec      { return FieldSpec{FieldI32, 4, name} }
func u64(name string) FieldSpec      { return FieldSpec{FieldU64, 8, name} }
func strArray(name string) FieldSpec { return FieldSpec{FieldStringArray, 4, name} }

// Every consumer starts with the __EventConsumer properties.
func consumerFields(fields ...FieldSpec) []FieldSpec {
	return append([]FieldSpec{
		str("MachineName"),
		u32("MaximumQueueSize"),
		sid("CreatorSID"),
		str("Name"),
	}, fields...)
}

var CommandLineConsumerSchema = &Schema{
	TypeName: "CommandLineEventConsumer",
	Gap:      0xC,
	Fields: consumerFields(
		str("ExecutablePath"),
		str("CommandLineTemplate"),
		boolean("UseDefaultErrorMode"),
		boolean("CreateNewConsole"),
		boolean("CreateNewProcessGroup"),
		boolean("CreateSeparateWowVdm"),
		boolean("CreateSharedWowVdm"),
		i32("Priority"),
		str("WorkingDirectory"),
		str("DesktopName"),
		str("WindowTitle"),
		u32("XCoordinate"),
		u32("YCoordinate"),
		u32("XSize"),
		u32("YSize"),
		u32("XNumCharacters"),
		u32("YNumCharacters"),
		u32("FillAttributes"),
		u32("ShowWindowCommand"),
		boolean("ForceOnFeedback"),
		boolean("ForceOffFeedback"),
		boolean("RunInteractively"),
		u32("KillTimeout"),
	),
}

var ActiveScriptConsumerSchema = &Schema{
	TypeName: "ActiveScriptEventConsumer",
	Gap:      7,
	Fields: consumerFields(
		str("ScriptingEngine"),
		str("ScriptFileName"),
		str("ScriptText"),
		u32("KillTimeout"),
	),
}

var LogFileConsumerSchema = &Schema{
	TypeName: "LogFileEventConsumer",
	Gap:      7,
	Fields: consumerFields(
		str("Filename"),
		str("Text"),
		u64("MaximumFileSize"),
		boolean("IsUnicode"),
	),
}

var NTEventLogConsumerSchema = &Schema{
	TypeName: "NTEventLogEventConsumer",
	Gap:      9,
	Fields: consumerFields(
		str("UNCServerName"),
		str("SourceName"),
		u32("EventID"),
		u32("EventType"),
		u16("Category"),
		u32("NumberOfInsertionStrings"),
		strArray("InsertionStringTemplates"),
		str("NameOfRawDataProperty"),
		str("NameoftheUserSIDProp"),
	),
}

var SMTPConsumerSchema = &Schema{
	TypeName: "SMTPEventConsumer",
	Gap:      9,
	Fields: consumerFields(
		str("SMTPServer"),
		str("Subject"),
		str("FromLine"),
		str("ReplyToLine"),
		str("Message"),
		str("ToLine"),
		str("CcLine"),
		str("BccLine"),
		strArray("HeaderFields"),
	),
}

// ConsumerSchemas lists the standard consumer classes in detection order.
var ConsumerSchemas = []*Schema{
	CommandLineConsumerSchema,
	ActiveScriptConsumerSchema,
	NTEventLogConsumerSchema,
	LogFileConsumerSchema,
	SMTPConsumerSchema,
}

var EventFilterSchema = &Schema{
	TypeName: EventFilterClass,
	Gap:      7,
	Fields: []FieldSpec{
		str("Name"),
		sid("CreatorSID"),
		str("QueryLanguage"),
		str("Query"),
		str("EventNamespace"),
		u32("EventAccess"),
	},
}

var BindingSchema = &Schema{
	TypeName: BindingClass,
	Gap:      7,
	Fields: []FieldSpec{
		str("Filter"),
		str("Consumer"),
		u32("DeliveryQoS"),
		boolean("DeliverSynchronously"),
		boolean("MaintainSecurityContext"),
		boolean("SlowDownProviders"),
		sid("CreatorSID"),
	},
}
