package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Registry           = (*DeploymentRegistry)(nil)
	_ DeploymentWriter   = (*DeploymentRegistry)(nil)
	_ ComponentMetadata  = (*Deployment)(nil)
	_ Authorizer         = (*RoleAuthorizer)(nil)
	_ TransactionManager = (*LocalTransactionManager)(nil)
	_ Transaction        = (*LocalTransaction)(nil)
	_ BusinessInvoker    = DirectInvoker{}

	_ TransactionPolicy = RequiredPolicy{}
	_ TransactionPolicy = RequiresNewPolicy{}
	_ TransactionPolicy = MandatoryPolicy{}
	_ TransactionPolicy = SupportsPolicy{}
	_ TransactionPolicy = NotSupportedPolicy{}
	_ TransactionPolicy = NeverPolicy{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
