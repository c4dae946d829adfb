package wirelog

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// The descriptors below mirror wirelog.proto and must be kept in step
// with it.
var (
	// File is the built wirelog.proto descriptor.
	File protoreflect.FileDescriptor

	logMsg, recordMsg, valueMsg, submissionMsg protoreflect.MessageDescriptor

	logRecords protoreflect.FieldDescriptor

	recordName, recordValues protoreflect.FieldDescriptor

	valueOneof protoreflect.OneofDescriptor

	valueAddress, valueUInt, valueFixed, valueText protoreflect.FieldDescriptor

	subOp, subCaller, subStore, subArgs, subProperties protoreflect.FieldDescriptor
)

func init() {
	fd, err := protodesc.NewFile(fileProto(), new(protoregistry.Files))
	if err != nil {
		panic("wirelog: build descriptor: " + err.Error())
	}
	File = fd

	msgs := fd.Messages()
	logMsg = msgs.ByName("Log")
	recordMsg = msgs.ByName("Record")
	valueMsg = msgs.ByName("Value")
	submissionMsg = msgs.ByName("Submission")

	logRecords = logMsg.Fields().ByName("records")

	recordName = recordMsg.Fields().ByName("name")
	recordValues = recordMsg.Fields().ByName("values")

	valueOneof = valueMsg.Oneofs().ByName("v")
	valueAddress = valueMsg.Fields().ByName("address")
	valueUInt = valueMsg.Fields().ByName("uint")
	valueFixed = valueMsg.Fields().ByName("fixed")
	valueText = valueMsg.Fields().ByName("text")

	sf := submissionMsg.Fields()
	subOp = sf.ByName("op")
	subCaller = sf.ByName("caller")
	subStore = sf.ByName("store")
	subArgs = sf.ByName("args")
	subProperties = sf.ByName("properties")
}

func fileProto() *descriptorpb.FileDescriptorProto {
	var (
		optional = descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
		repeated = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
		tString  = descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()
		tBytes   = descriptorpb.FieldDescriptorProto_TYPE_BYTES.Enum()
		tMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
	)
	field := func(name string, num int32, label *descriptorpb.FieldDescriptorProto_Label, typ *descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(name),
			JsonName: proto.String(name),
			Number:   proto.Int32(num),
			Label:    label,
			Type:     typ,
		}
	}
	message := func(name string, num int32, label *descriptorpb.FieldDescriptorProto_Label, typeName string) *descriptorpb.FieldDescriptorProto {
		f := field(name, num, label, tMessage)
		f.TypeName = proto.String(".chronicle.wirelog.v1." + typeName)
		return f
	}
	inOneof := func(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
		f.OneofIndex = proto.Int32(0)
		return f
	}

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("chronicle/wirelog/v1/wirelog.proto"),
		Package: proto.String("chronicle.wirelog.v1"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name:  proto.String("Log"),
				Field: []*descriptorpb.FieldDescriptorProto{message("records", 1, repeated, "Record")},
			},
			{
				Name: proto.String("Record"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("name", 1, optional, tString),
					message("values", 2, repeated, "Value"),
				},
			},
			{
				Name: proto.String("Value"),
				Field: []*descriptorpb.FieldDescriptorProto{
					inOneof(field("address", 1, optional, tString)),
					inOneof(field("uint", 2, optional, tBytes)),
					inOneof(field("fixed", 3, optional, tBytes)),
					inOneof(field("text", 4, optional, tString)),
				},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("v")}},
			},
			{
				Name: proto.String("Submission"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("op", 1, optional, tString),
					field("caller", 2, optional, tString),
					field("store", 3, optional, tString),
					message("args", 4, optional, "Record"),
					message("properties", 5, repeated, "Record"),
				},
			},
		},
	}
}
