package hclconf

// profileFile mirrors the on-disk HCL layout of a deployment profile.
// These structs exist only for gohcl decoding; translate.go converts
// them into the config model.
type profileFile struct {
	Portal     *portalBlock     `hcl:"portal,block"`
	Deployment *deploymentBlock `hcl:"deployment,block"`
}

type portalBlock struct {
	URL            string `hcl:"url"`
	Token          string `hcl:"token,optional"`
	TimeoutSeconds int    `hcl:"timeout_seconds,optional"`
}

type deploymentBlock struct {
	Name   string `hcl:"name,optional"`
	Folder string `hcl:"folder,optional"`
}
