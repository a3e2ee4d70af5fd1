package models

// Configuration keys discovery writes and health rules read
const (
	ConfigIngressOpenCIDR     = "ingress_open_cidr"
	ConfigEncryption          = "encryption"
	ConfigPublic              = "public"
	ConfigPublicIP            = "public_ip"
	ConfigMonitoring          = "monitoring"
	ConfigRootVolumeEncrypted = "root_volume_encrypted"
	ConfigPubliclyAccessible  = "publicly_accessible"
	ConfigStorageEncrypted    = "storage_encrypted"
	ConfigScheme              = "scheme"
	ConfigSecurityGroups      = "security_groups"
	ConfigInstanceType        = "instance_type"
	ConfigInstanceClass       = "instance_class"
	ConfigVPCID               = "vpc_id"
	ConfigSubnetID            = "subnet_id"
	ConfigCIDRBlock           = "cidr_block"
	SchemeInternetFacing      = "internet-facing"
	EncryptionNone            = "none"
	MonitoringDisabled        = "disabled"
)
