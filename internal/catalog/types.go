package catalog

import (
	"fmt"
	"strings"
)

const (
	packageReferenceWithEpochTemplateConstant    = "%s-%s:%s-%s.%s"
	packageReferenceWithoutEpochTemplateConstant = "%s-%s-%s.%s"
)

// SystemID identifies a registered system on the catalog server.
type SystemID int64

// ChannelID identifies a channel on the catalog server.
type ChannelID int64

// PackageReference identifies a versioned package build within a channel or
// on a system.
type PackageReference struct {
	Name         string
	Version      string
	Release      string
	Epoch        *string
	Architecture string
}

// SamePackage reports whether both references name the same package,
// irrespective of version, release, and epoch.
func (reference PackageReference) SamePackage(other PackageReference) bool {
	return reference.Name == other.Name && reference.Architecture == other.Architecture
}

// SameBuild reports whether both references identify the identical build.
func (reference PackageReference) SameBuild(other PackageReference) bool {
	if !reference.SamePackage(other) {
		return false
	}
	if reference.Version != other.Version || reference.Release != other.Release {
		return false
	}
	return reference.epochValue() == other.epochValue()
}

// Key returns the name+architecture identity used to match packages across
// channels and systems.
func (reference PackageReference) Key() string {
	return reference.Name + "." + reference.Architecture
}

// String renders the reference in name-[epoch:]version-release.arch form.
func (reference PackageReference) String() string {
	if reference.Epoch != nil && len(strings.TrimSpace(*reference.Epoch)) > 0 {
		return fmt.Sprintf(packageReferenceWithEpochTemplateConstant, reference.Name, *reference.Epoch, reference.Version, reference.Release, reference.Architecture)
	}
	return fmt.Sprintf(packageReferenceWithoutEpochTemplateConstant, reference.Name, reference.Version, reference.Release, reference.Architecture)
}

func (reference PackageReference) epochValue() string {
	if reference.Epoch == nil {
		return ""
	}
	return strings.TrimSpace(*reference.Epoch)
}

// Channel captures the server-side state of a single channel.
type Channel struct {
	ID          ChannelID
	Label       string
	Name        string
	Summary     string
	ParentLabel string
	ChildLabels []string
	Packages    []PackageReference
	SystemIDs   []SystemID
}

// IsBase reports whether the channel has no parent.
func (channel Channel) IsBase() bool {
	return len(channel.ParentLabel) == 0
}

// System captures a registered system and its installed package set.
type System struct {
	ID                SystemID
	SubscribedChannel string
	InstalledPackages []PackageReference
}
