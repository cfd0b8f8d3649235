package manifest

// Endpoints holds the remote metadata and repository base URLs the
// resolver talks to. Every field is overridable, which is how tests
// point the resolver at fixture servers and how users select mirrors.
type Endpoints struct {
	// VersionManifest is the game version manifest URL.
	VersionManifest string `yaml:"version_manifest"`
	// AssetsBase is the content-addressed asset object base URL.
	AssetsBase string `yaml:"assets_base"`
	// FabricMeta is the fabric metadata service base URL.
	FabricMeta string `yaml:"fabric_meta"`
	// FabricMaven is the fabric maven repository base URL.
	FabricMaven string `yaml:"fabric_maven"`
	// QuiltMeta is the quilt metadata service base URL.
	QuiltMeta string `yaml:"quilt_meta"`
	// QuiltMaven is the quilt maven repository base URL.
	QuiltMaven string `yaml:"quilt_maven"`
	// ForgeList is the forge version list service base URL.
	ForgeList string `yaml:"forge_list"`
	// ForgeMaven is the forge maven repository base URL.
	ForgeMaven string `yaml:"forge_maven"`
	// OptifineList is the optifine version list service base URL,
	// also serving the patch artifacts themselves.
	OptifineList string `yaml:"optifine_list"`
	// OptifineHelper is the URL of the external optifine installer
	// helper jar.
	OptifineHelper string `yaml:"optifine_helper"`
}

// DefaultEndpoints returns the upstream production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		VersionManifest: "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json",
		AssetsBase:      "https://resources.download.minecraft.net",
		FabricMeta:      "https://meta.fabricmc.net",
		FabricMaven:     "https://maven.fabricmc.net",
		QuiltMeta:       "https://meta.quiltmc.org",
		QuiltMaven:      "https://maven.quiltmc.org/repository/release",
		ForgeList:       "https://bmclapi2.bangbang93.com/forge",
		ForgeMaven:      "https://maven.minecraftforge.net",
		OptifineList:    "https://bmclapi2.bangbang93.com/optifine",
		OptifineHelper:  "https://maven.fabricmc.net/net/stevexmh/optifine-installer/0.0.0/optifine-installer.jar",
	}
}

// withDefaults fills empty fields from DefaultEndpoints.
func (e Endpoints) withDefaults() Endpoints {
	def := DefaultEndpoints()
	if e.VersionManifest == "" {
		e.VersionManifest = def.VersionManifest
	}
	if e.AssetsBase == "" {
		e.AssetsBase = def.AssetsBase
	}
	if e.FabricMeta == "" {
		e.FabricMeta = def.FabricMeta
	}
	if e.FabricMaven == "" {
		e.FabricMaven = def.FabricMaven
	}
	if e.QuiltMeta == "" {
		e.QuiltMeta = def.QuiltMeta
	}
	if e.QuiltMaven == "" {
		e.QuiltMaven = def.QuiltMaven
	}
	if e.ForgeList == "" {
		e.ForgeList = def.ForgeList
	}
	if e.ForgeMaven == "" {
		e.ForgeMaven = def.ForgeMaven
	}
	if e.OptifineList == "" {
		e.OptifineList = def.OptifineList
	}
	if e.OptifineHelper == "" {
		e.OptifineHelper = def.OptifineHelper
	}
	return e
}
